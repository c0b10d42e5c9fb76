package membership

import (
	"context"
	"errors"
	"testing"

	memberpolicy "workspace-backend/internal/application/policies/membership"
	"workspace-backend/internal/domain"
	"workspace-backend/internal/pkg/constants"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeElevator struct {
	db    *gorm.DB
	calls int
	err   error
}

func (f *fakeElevator) RemoveMember(ctx context.Context, actorID, memberID, companyID uuid.UUID) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.db.Model(&domain.Profile{}).Where("id = ? AND company_id = ?", memberID, companyID).
		Updates(map[string]interface{}{"company_id": nil, "role": nil, "tags": nil}).Error
}

func setupMembershipTest(t *testing.T) (*Service, uuid.UUID) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Company{}, &domain.Profile{}))
	company := domain.Company{Handle: "acme", Name: "Acme"}
	require.NoError(t, db.Create(&company).Error)
	return &Service{DB: db}, company.ID
}

func addMember(t *testing.T, db *gorm.DB, companyID uuid.UUID, role constants.Role) (*domain.Profile, domain.Identity) {
	p := &domain.Profile{UserID: uuid.New(), Email: uuid.NewString() + "@x.com", CompanyID: &companyID, Role: &role,
		Tags: []byte(`["x"]`)}
	require.NoError(t, db.Create(p).Error)
	return p, domain.Identity{UserID: p.UserID, Email: p.Email}
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) domain.Profile {
	var p domain.Profile
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p
}

func adminCount(t *testing.T, db *gorm.DB, companyID uuid.UUID) int64 {
	n, err := memberpolicy.CountAdmins(db, companyID)
	require.NoError(t, err)
	return n
}

func TestChangeRole_LastAdminScenario(t *testing.T) {
	svc, companyID := setupMembershipTest(t)
	ctx := context.Background()
	a, aID := addMember(t, svc.DB, companyID, constants.Admin)
	b, _ := addMember(t, svc.DB, companyID, constants.Member)

	err := svc.ChangeRole(ctx, aID, companyID, a.ID, constants.Member)
	assert.Equal(t, memberpolicy.ErrLastAdminRoleChange, err)
	assert.Equal(t, int64(1), adminCount(t, svc.DB, companyID))

	require.NoError(t, svc.ChangeRole(ctx, aID, companyID, b.ID, constants.Admin))
	require.NoError(t, svc.ChangeRole(ctx, aID, companyID, a.ID, constants.Member))

	assert.Equal(t, constants.Member, *reload(t, svc.DB, a.ID).Role)
	assert.Equal(t, int64(1), adminCount(t, svc.DB, companyID))
}

// demoteBeforeWrite simulates a concurrent request that demotes other after
// the policy check has passed but before the guarded write runs.
func demoteBeforeWrite(t *testing.T, db *gorm.DB, other uuid.UUID) *bool {
	fired := new(bool)
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:concurrent_demote", func(tx *gorm.DB) {
		if tx.Statement.Table != "profiles" || *fired {
			return
		}
		*fired = true
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE profiles SET role = ? WHERE id = ?", constants.Member, other).Error)
	}))
	return fired
}

func TestChangeRole_GuardRejectsRacedDemotion(t *testing.T) {
	svc, companyID := setupMembershipTest(t)
	ctx := context.Background()
	a, aID := addMember(t, svc.DB, companyID, constants.Admin)
	b, _ := addMember(t, svc.DB, companyID, constants.Admin)

	fired := demoteBeforeWrite(t, svc.DB, b.ID)
	err := svc.ChangeRole(ctx, aID, companyID, a.ID, constants.Member)
	require.True(t, *fired)
	assert.Equal(t, memberpolicy.ErrLastAdminRoleChange, err)
	assert.Equal(t, constants.Admin, *reload(t, svc.DB, a.ID).Role)
	assert.Equal(t, int64(1), adminCount(t, svc.DB, companyID))
}

func TestRemoveMember_GuardRejectsRacedDemotion(t *testing.T) {
	svc, companyID := setupMembershipTest(t)
	ctx := context.Background()
	a, aID := addMember(t, svc.DB, companyID, constants.Admin)
	b, _ := addMember(t, svc.DB, companyID, constants.Admin)

	fired := demoteBeforeWrite(t, svc.DB, a.ID)
	_, err := svc.RemoveMember(ctx, aID, companyID, b.ID)
	require.True(t, *fired)
	assert.Equal(t, memberpolicy.ErrLastAdminRemoval, err)
	assert.Equal(t, companyID, *reload(t, svc.DB, b.ID).CompanyID)
	assert.Equal(t, int64(1), adminCount(t, svc.DB, companyID))
}

func TestChangeRole_Validation(t *testing.T) {
	svc, companyID := setupMembershipTest(t)
	ctx := context.Background()
	_, aID := addMember(t, svc.DB, companyID, constants.Admin)
	m, mID := addMember(t, svc.DB, companyID, constants.Manager)

	assert.Equal(t, ErrMissingFields, svc.ChangeRole(ctx, aID, companyID, uuid.Nil, constants.HR))
	assert.Equal(t, ErrInvalidRole, svc.ChangeRole(ctx, aID, companyID, m.ID, "Owner"))
	assert.Equal(t, memberpolicy.ErrOnlyAdminsCanChangeRoles, svc.ChangeRole(ctx, mID, companyID, m.ID, constants.HR))
	assert.Equal(t, memberpolicy.ErrMemberNotFound, svc.ChangeRole(ctx, aID, companyID, uuid.New(), constants.HR))
}

func TestRemoveMember_SelfAndAdmin(t *testing.T) {
	svc, companyID := setupMembershipTest(t)
	ctx := context.Background()
	_, aID := addMember(t, svc.DB, companyID, constants.Admin)
	g, gID := addMember(t, svc.DB, companyID, constants.Guest)
	m, _ := addMember(t, svc.DB, companyID, constants.Member)

	self, err := svc.RemoveMember(ctx, gID, companyID, g.ID)
	require.NoError(t, err)
	assert.True(t, self)
	removed := reload(t, svc.DB, g.ID)
	assert.Nil(t, removed.CompanyID)
	assert.Nil(t, removed.Role)
	assert.Empty(t, removed.Tags)

	self, err = svc.RemoveMember(ctx, aID, companyID, m.ID)
	require.NoError(t, err)
	assert.False(t, self)
}

func TestRemoveMember_Rejections(t *testing.T) {
	svc, companyID := setupMembershipTest(t)
	ctx := context.Background()
	a, aID := addMember(t, svc.DB, companyID, constants.Admin)
	_, mgrID := addMember(t, svc.DB, companyID, constants.Manager)
	g, _ := addMember(t, svc.DB, companyID, constants.Guest)

	_, err := svc.RemoveMember(ctx, mgrID, companyID, g.ID)
	assert.Equal(t, memberpolicy.ErrCannotRemoveOtherMembers, err)

	_, err = svc.RemoveMember(ctx, aID, companyID, a.ID)
	assert.Equal(t, memberpolicy.ErrLastAdminRemoval, err)
	assert.Equal(t, int64(1), adminCount(t, svc.DB, companyID))

	_, err = svc.RemoveMember(ctx, aID, companyID, uuid.New())
	assert.Equal(t, memberpolicy.ErrMemberNotFound, err)
}

func TestRemoveMember_FallsBackToElevatorOnDenial(t *testing.T) {
	svc, companyID := setupMembershipTest(t)
	ctx := context.Background()
	_, aID := addMember(t, svc.DB, companyID, constants.Admin)
	m, _ := addMember(t, svc.DB, companyID, constants.Member)

	elevator := &fakeElevator{db: svc.DB}
	svc.Elevator = elevator
	svc.Scope = func(db *gorm.DB, userID uuid.UUID, fn func(tx *gorm.DB) error) error {
		return &pgconn.PgError{Code: "42501", Message: "permission denied for table profiles"}
	}

	self, err := svc.RemoveMember(ctx, aID, companyID, m.ID)
	require.NoError(t, err)
	assert.False(t, self)
	assert.Equal(t, 1, elevator.calls)
	assert.Nil(t, reload(t, svc.DB, m.ID).CompanyID)
}

func TestRemoveMember_ZeroRowsUnderScopeEscalates(t *testing.T) {
	svc, companyID := setupMembershipTest(t)
	ctx := context.Background()
	_, aID := addMember(t, svc.DB, companyID, constants.Admin)
	m, _ := addMember(t, svc.DB, companyID, constants.Member)

	elevator := &fakeElevator{db: svc.DB}
	svc.Elevator = elevator
	// Simulates a policy that hides the row: the update matches nothing.
	svc.Scope = func(db *gorm.DB, userID uuid.UUID, fn func(tx *gorm.DB) error) error {
		return fn(db.Where("1 = 0"))
	}

	_, err := svc.RemoveMember(ctx, aID, companyID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, elevator.calls)
}

func TestRemoveMember_ValidationFailureNeverEscalates(t *testing.T) {
	svc, companyID := setupMembershipTest(t)
	ctx := context.Background()
	_, mgrID := addMember(t, svc.DB, companyID, constants.Manager)
	g, _ := addMember(t, svc.DB, companyID, constants.Guest)

	elevator := &fakeElevator{db: svc.DB}
	svc.Elevator = elevator
	svc.Scope = func(db *gorm.DB, userID uuid.UUID, fn func(tx *gorm.DB) error) error {
		return errors.New("permission denied")
	}

	_, err := svc.RemoveMember(ctx, mgrID, companyID, g.ID)
	assert.Equal(t, memberpolicy.ErrCannotRemoveOtherMembers, err)
	assert.Equal(t, 0, elevator.calls)
}

func TestRemoveMember_InfraErrorIsInternal(t *testing.T) {
	svc, companyID := setupMembershipTest(t)
	ctx := context.Background()
	_, aID := addMember(t, svc.DB, companyID, constants.Admin)
	m, _ := addMember(t, svc.DB, companyID, constants.Member)

	elevator := &fakeElevator{db: svc.DB}
	svc.Elevator = elevator
	svc.Scope = func(db *gorm.DB, userID uuid.UUID, fn func(tx *gorm.DB) error) error {
		return errors.New("connection reset by peer")
	}

	_, err := svc.RemoveMember(ctx, aID, companyID, m.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Equal(t, 0, elevator.calls)
}
