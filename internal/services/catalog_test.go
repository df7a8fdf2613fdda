package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/config"
	"github.com/harentsoaR/dentalab-api/internal/models"
)

func TestResolveCode(t *testing.T) {
	products := []models.Product{
		{Name: "Zirconia Crown", Code: "ZC"},
		{Name: "Night Guard", Code: ""},
	}
	tests := []struct {
		workType string
		want     string
	}{
		{"Zirconia Crown", "ZC"},
		{"zirconia crown", "ZI"},
		{"Night Guard", "NI"},
		{"é-max", "É-"},
		{"x", "X"},
		{"  ", FallbackCode},
		{"", FallbackCode},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveCode(products, tt.workType), tt.workType)
	}
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "ZC-0007", FormatID("ZC", 7))
	assert.Equal(t, "ZC-12345", FormatID("ZC", 12345))
}

func TestProductService_DeleteDetachesOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.orders.CreateOrder(ctx, draft("Zirconia Crown"))
	require.NoError(t, err)
	b, err := f.orders.CreateOrder(ctx, draft("E-Max Veneer"))
	require.NoError(t, err)

	n, err := f.products.Delete(ctx, "p-zc")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.orders.GetOrder(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductNotFound, got.WorkType)
	assert.Equal(t, a.ID, got.ID, "detaching is not a migration")

	got, err = f.orders.GetOrder(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "E-Max Veneer", got.WorkType)

	_, err = f.products.Delete(ctx, "p-zc")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductService_CreateAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.products.Create(ctx, ProductInput{Name: " PFM Bridge ", Code: " pfb "})
	require.NoError(t, err)
	assert.Equal(t, "PFM Bridge", p.Name)
	assert.Equal(t, "PFB", p.Code)
	assert.True(t, p.Active)

	_, err = f.products.Create(ctx, ProductInput{Name: "zirconia crown", Code: "Z2"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.products.Create(ctx, ProductInput{Name: "Inlay"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.products.Create(ctx, ProductInput{Name: models.ProductNotFound, Code: "PN"})
	assert.ErrorIs(t, err, ErrValidation)

	inactive := false
	p, err = f.products.Update(ctx, p.ID, ProductInput{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, p.Active)
	assert.Equal(t, "PFB", p.Code)

	_, err = f.products.Update(ctx, "missing", ProductInput{Name: "X"})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestUserService_ValidationMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		in   UserInput
		want string
	}{
		"missing name":   {UserInput{Email: "a@lab.test", Password: "long-enough", Role: models.RoleAdmin}, "fullName is required"},
		"missing email":  {UserInput{FullName: "A", Password: "long-enough", Role: models.RoleAdmin}, "email is required"},
		"bad email":      {UserInput{FullName: "A", Email: "a@", Password: "long-enough", Role: models.RoleAdmin}, `email "a@" is invalid`},
		"short password": {UserInput{FullName: "A", Email: "a@lab.test", Password: "short", Role: models.RoleAdmin}, "password must be at least 8 characters"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.users.Create(ctx, tc.in)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	_, err := f.users.Update(ctx, "doc-1", UserInput{Email: "smith-at-clinic"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.users.Update(ctx, "doc-1", UserInput{Password: "tiny"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUserService_UpdateEmailLookupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.set(func(s *faultyStore) { s.failEmailLookup = true })

	_, err := f.users.Update(ctx, "doc-1", UserInput{Email: "alice@lab.test"})
	require.ErrorIs(t, err, errInjected)
	assert.NotErrorIs(t, err, ErrConflict)

	u, err := f.users.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "smith@clinic.test", u.Email)
}

func TestUserService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.Create(ctx, UserInput{
		FullName:      "Dr. Jones",
		Email:         " Jones@Clinic.TEST ",
		Password:      "long-enough",
		Role:          models.RoleDoctor,
		RelatedEntity: "Bright Teeth",
	})
	require.NoError(t, err)
	assert.Equal(t, "jones@clinic.test", u.Email)
	assert.NotEqual(t, "long-enough", u.Password)

	_, err = f.users.Create(ctx, UserInput{FullName: "Dup", Email: "jones@clinic.test", Password: "long-enough", Role: models.RoleDoctor})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.users.Create(ctx, UserInput{FullName: "Short", Email: "s@lab.test", Password: "short", Role: models.RoleDoctor})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.users.Create(ctx, UserInput{FullName: "Role", Email: "r@lab.test", Password: "long-enough", Role: "client"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.users.Create(ctx, UserInput{FullName: "Mail", Email: "not-an-email", Password: "long-enough", Role: models.RoleDoctor})
	assert.ErrorIs(t, err, ErrValidation)

	got, err := f.users.Authenticate(ctx, "JONES@clinic.test", "long-enough")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = f.users.Authenticate(ctx, "jones@clinic.test", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.users.Authenticate(ctx, "ghost@clinic.test", "long-enough")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	updated, err := f.users.UpdateProfile(ctx, u.ID, "Dr. Indiana Jones")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Indiana Jones", updated.FullName)
	_, err = f.users.UpdateProfile(ctx, u.ID, " ")
	assert.ErrorIs(t, err, ErrValidation)

	techs, err := f.users.Technicians(ctx)
	require.NoError(t, err)
	assert.Len(t, techs, 2)

	require.NoError(t, f.users.Delete(ctx, u.ID))
	assert.ErrorIs(t, f.users.Delete(ctx, u.ID), ErrUserNotFound)
	_, err = f.users.Get(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestNotificationService_Inbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	f.notes.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for i := 0; i < InboxSize+5; i++ {
		require.NoError(t, f.notes.Notify(ctx, "doc-1", "Case RECEIVED", "msg", models.KindSuccess, ""))
	}
	require.NoError(t, f.notes.Notify(ctx, "tech-1", "New Case Assigned", "msg", models.KindInfo, ""))

	list, err := f.notes.List(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Len(t, list, InboxSize)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))

	few, err := f.notes.List(ctx, "doc-1", 3)
	require.NoError(t, err)
	assert.Len(t, few, 3)

	empty, err := f.notes.List(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	count, err := f.notes.UnreadCount(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, InboxSize+5, count)

	techInbox, err := f.notes.List(ctx, "tech-1", 0)
	require.NoError(t, err)
	require.Len(t, techInbox, 1)
	assert.ErrorIs(t, f.notes.MarkRead(ctx, "doc-1", techInbox[0].ID), ErrNotificationNotFound)

	require.NoError(t, f.notes.MarkRead(ctx, "doc-1", list[0].ID))
	require.NoError(t, f.notes.MarkRead(ctx, "doc-1", list[0].ID))
	count, err = f.notes.UnreadCount(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, InboxSize+4, count)

	marked, err := f.notes.MarkAllRead(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, InboxSize+4, marked)
	count, err = f.notes.UnreadCount(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = f.notes.UnreadCount(ctx, "tech-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSummarizeOrders(t *testing.T) {
	now := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
	orders := []models.Order{
		{Status: models.StatusSubmitted, Priority: models.PriorityNormal, DueDate: now.AddDate(0, 0, -1)},
		{Status: models.StatusDelivered, Priority: models.PriorityUrgent, DueDate: now.AddDate(0, 0, -3)},
		{Status: models.StatusMilling, Priority: models.PriorityUrgent, DueDate: time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)},
	}
	stats := SummarizeOrders(orders, now)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.StatusSubmitted])
	assert.Equal(t, 0, stats.ByStatus[models.StatusGlazing])
	assert.Len(t, stats.ByStatus, len(models.Pipeline))
	assert.Equal(t, 2, stats.ByPriority[models.PriorityUrgent])
	assert.Equal(t, 1, stats.Overdue, "due today is not overdue, delivered never is")
}

func TestApplySeed_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := &config.Seed{
		Users: []config.SeedUser{
			{FullName: "Root", Email: "root@lab.test", Password: "change-me-now", Role: "admin"},
			{FullName: "Alice Admin", Email: "alice@lab.test", Password: "ignored-pass", Role: "ADMIN"},
		},
		Products: []config.SeedProduct{
			{Name: "Zirconia Crown", Code: "ZC"},
			{Name: "Implant Abutment", Code: "ia"},
		},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, ApplySeed(ctx, seed, f.users, f.products, zap.NewNop()))
	}

	users, err := f.users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, len(staff)+1)

	root, err := f.users.Authenticate(ctx, "root@lab.test", "change-me-now")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, root.Role)

	products, err := f.products.List(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 3)
}
