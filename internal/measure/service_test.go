package measure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock Repository --

type mockMeasureRepo struct {
	store map[uuid.UUID]*Measure
}

func newMockMeasureRepo() *mockMeasureRepo {
	return &mockMeasureRepo{store: make(map[uuid.UUID]*Measure)}
}

func (m *mockMeasureRepo) Create(_ context.Context, ms *Measure) error {
	for _, existing := range m.store {
		if existing.Name == ms.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateName, ms.Name)
		}
	}
	ms.ID = uuid.New()
	ms.VersionID = 1
	ms.CreatedAt = time.Now()
	ms.UpdatedAt = ms.CreatedAt
	m.store[ms.ID] = ms
	return nil
}

func (m *mockMeasureRepo) GetByID(_ context.Context, id uuid.UUID) (*Measure, error) {
	ms, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ms, nil
}

func (m *mockMeasureRepo) GetByName(_ context.Context, name string) (*Measure, error) {
	for _, ms := range m.store {
		if ms.Name == name {
			return ms, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockMeasureRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockMeasureRepo) List(_ context.Context, limit, offset int) ([]*Measure, int, error) {
	var all []*Measure
	for _, ms := range m.store {
		all = append(all, ms)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func newTestService(t *testing.T, repo MeasureRepository, opts ...Option) *Service {
	t.Helper()
	return NewService(newTestImporter(t, opts...), repo, zerolog.Nop())
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return data
}

const conditionsDef = `
conditions:
  standard_categories: [diagnosis_condition_problem]
  statuses: [active]
`

func TestService_Extract(t *testing.T) {
	svc := newTestService(t, nil)
	def := mustDecode(t, conditionsDef)

	out, err := svc.Extract(context.Background(), def, readFixture(t, "c32.xml"), false)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.Profile != ProfileC32 {
		t.Errorf("expected c32 profile, got %s", out.Profile)
	}
	if out.Header.Title != "Continuity of Care Document" {
		t.Errorf("unexpected title %q", out.Header.Title)
	}
	if len(out.Results["conditions"]) != 2 {
		t.Errorf("expected 2 unfiltered conditions, got %d", len(out.Results["conditions"]))
	}

	filtered, err := svc.Extract(context.Background(), def, readFixture(t, "c32.xml"), true)
	if err != nil {
		t.Fatalf("Extract filtered: %v", err)
	}
	if got := recordIDs(filtered.Results["conditions"]); len(got) != 1 || got[0] != "cond-2" {
		t.Errorf("expected [cond-2], got %v", got)
	}
}

func TestService_Extract_InvalidDocument(t *testing.T) {
	svc := newTestService(t, nil)
	def := mustDecode(t, conditionsDef)

	for _, doc := range []string{"", "<html/>", "plain text"} {
		_, err := svc.Extract(context.Background(), def, []byte(doc), false)
		if !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("%q: expected ErrInvalidDocument, got %v", doc, err)
		}
	}
}

func TestService_Extract_CanceledContext(t *testing.T) {
	svc := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Extract(ctx, mustDecode(t, conditionsDef), readFixture(t, "c32.xml"), false)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestService_StorageDisabled(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	if svc.StorageEnabled() {
		t.Fatal("expected storage to be disabled")
	}

	if err := svc.CreateMeasure(ctx, &Measure{Name: "x", Definition: mustDecode(t, conditionsDef)}); !errors.Is(err, ErrStorageDisabled) {
		t.Errorf("CreateMeasure: expected ErrStorageDisabled, got %v", err)
	}
	if _, err := svc.GetMeasure(ctx, uuid.New()); !errors.Is(err, ErrStorageDisabled) {
		t.Errorf("GetMeasure: expected ErrStorageDisabled, got %v", err)
	}
	if _, err := svc.GetMeasureByName(ctx, "x"); !errors.Is(err, ErrStorageDisabled) {
		t.Errorf("GetMeasureByName: expected ErrStorageDisabled, got %v", err)
	}
	if _, _, err := svc.ListMeasures(ctx, 10, 0); !errors.Is(err, ErrStorageDisabled) {
		t.Errorf("ListMeasures: expected ErrStorageDisabled, got %v", err)
	}
	if err := svc.DeleteMeasure(ctx, uuid.New()); !errors.Is(err, ErrStorageDisabled) {
		t.Errorf("DeleteMeasure: expected ErrStorageDisabled, got %v", err)
	}
	if _, err := svc.ExtractStored(ctx, uuid.New(), readFixture(t, "c32.xml"), false); !errors.Is(err, ErrStorageDisabled) {
		t.Errorf("ExtractStored: expected ErrStorageDisabled, got %v", err)
	}
}

func TestService_CreateMeasure(t *testing.T) {
	repo := newMockMeasureRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	m := &Measure{Name: "  diabetes  ", Definition: mustDecode(t, conditionsDef)}
	if err := svc.CreateMeasure(ctx, m); err != nil {
		t.Fatalf("CreateMeasure: %v", err)
	}
	if m.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	if m.Name != "diabetes" {
		t.Errorf("expected trimmed name, got %q", m.Name)
	}

	got, err := svc.GetMeasureByName(ctx, "diabetes")
	if err != nil {
		t.Fatalf("GetMeasureByName: %v", err)
	}
	if got.ID != m.ID {
		t.Errorf("expected %s, got %s", m.ID, got.ID)
	}

	dup := &Measure{Name: "diabetes", Definition: mustDecode(t, conditionsDef)}
	if err := svc.CreateMeasure(ctx, dup); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestService_CreateMeasure_Invalid(t *testing.T) {
	svc := newTestService(t, newMockMeasureRepo(), WithStrictCategories())
	ctx := context.Background()

	tests := []struct {
		name string
		m    *Measure
	}{
		{"blank name", &Measure{Name: " ", Definition: mustDecode(t, conditionsDef)}},
		{"no properties", &Measure{Name: "m", Definition: Definition{}}},
		{"bad rules", &Measure{Name: "m", Definition: mustDecode(t, "p:\n  start_date: someday\n")}},
		{"unquoted decimal code", &Measure{Name: "m", Definition: mustDecode(t, "p:\n  codes:\n    ICD-9-CM: [250.00]\n")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.CreateMeasure(ctx, tt.m); !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("expected ErrInvalidDefinition, got %v", err)
			}
		})
	}

	var catErr *UnknownCategoryError
	err := svc.CreateMeasure(ctx, &Measure{Name: "m", Definition: mustDecode(t, "p:\n  standard_categories: [allergy]\n")})
	if !errors.As(err, &catErr) {
		t.Errorf("expected UnknownCategoryError in strict mode, got %v", err)
	}
}

func TestService_ExtractStored(t *testing.T) {
	repo := newMockMeasureRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	m := &Measure{Name: "conditions", Definition: mustDecode(t, conditionsDef)}
	if err := svc.CreateMeasure(ctx, m); err != nil {
		t.Fatalf("CreateMeasure: %v", err)
	}

	out, err := svc.ExtractStored(ctx, m.ID, readFixture(t, "c32.xml"), true)
	if err != nil {
		t.Fatalf("ExtractStored: %v", err)
	}
	if got := recordIDs(out.Results["conditions"]); len(got) != 1 || got[0] != "cond-2" {
		t.Errorf("expected [cond-2], got %v", got)
	}

	if _, err := svc.ExtractStored(ctx, uuid.New(), readFixture(t, "c32.xml"), false); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListAndDelete(t *testing.T) {
	repo := newMockMeasureRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if err := svc.CreateMeasure(ctx, &Measure{Name: name, Definition: mustDecode(t, conditionsDef)}); err != nil {
			t.Fatalf("CreateMeasure %s: %v", name, err)
		}
	}

	items, total, err := svc.ListMeasures(ctx, 2, 1)
	if err != nil {
		t.Fatalf("ListMeasures: %v", err)
	}
	if total != 3 || len(items) != 2 || items[0].Name != "b" {
		t.Errorf("unexpected page: total=%d items=%d", total, len(items))
	}

	b, _ := svc.GetMeasureByName(ctx, "b")
	if err := svc.DeleteMeasure(ctx, b.ID); err != nil {
		t.Fatalf("DeleteMeasure: %v", err)
	}
	if _, err := svc.GetMeasure(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.DeleteMeasure(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
