package sequence

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/rs/zerolog"
)

// fakeIndex serves fixtures from maps.
type fakeIndex struct {
	categories map[string]*models.Category
	sequences  map[string]*models.Sequence
	prerolls   map[string]*models.Preroll
	members    map[string][]models.Preroll
}

var errNotFound = errors.New("not found")

func (f *fakeIndex) CategoryByID(id string) (*models.Category, error) {
	if c, ok := f.categories[id]; ok {
		return c, nil
	}
	return nil, errNotFound
}

func (f *fakeIndex) SequenceByID(id string) (*models.Sequence, error) {
	if s, ok := f.sequences[id]; ok {
		return s, nil
	}
	return nil, errNotFound
}

func (f *fakeIndex) PrerollByID(id string) (*models.Preroll, error) {
	if p, ok := f.prerolls[id]; ok {
		return p, nil
	}
	return nil, errNotFound
}

func (f *fakeIndex) PrerollsInCategory(categoryID string) ([]models.Preroll, error) {
	return f.members[categoryID], nil
}

func preroll(id string) models.Preroll {
	return models.Preroll{ID: id, Name: id, Path: "/data/prerolls/" + id + ".mp4"}
}

func newFixture() *fakeIndex {
	f := &fakeIndex{
		categories: map[string]*models.Category{
			"cat-small": {ID: "cat-small", PlaybackMode: models.PlaybackRandom},
			"cat-seq":   {ID: "cat-seq", PlaybackMode: models.PlaybackSequential},
		},
		sequences: map[string]*models.Sequence{},
		prerolls:  map[string]*models.Preroll{},
		members:   map[string][]models.Preroll{},
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		p := preroll(id)
		f.prerolls[id] = &p
		f.members["cat-small"] = append(f.members["cat-small"], p)
	}
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		p := preroll(id)
		f.prerolls[id] = &p
		f.members["cat-seq"] = append(f.members["cat-seq"], p)
	}
	return f
}

func TestDecodeBlockRejectsUnknownType(t *testing.T) {
	_, err := DecodeBlock(models.BlockSpec{Type: "shuffle", CategoryID: "x", Count: 1})
	if !errors.Is(err, ErrUnknownBlockType) {
		t.Fatalf("err = %v, want ErrUnknownBlockType", err)
	}
}

func TestDecodeBlockCountBounds(t *testing.T) {
	for _, count := range []int{0, 11, -3} {
		if _, err := DecodeBlock(models.BlockSpec{Type: "random", CategoryID: "x", Count: count}); err == nil {
			t.Errorf("count %d: expected error", count)
		}
	}
	if _, err := DecodeBlock(models.BlockSpec{Type: "random", CategoryID: "x", Count: 10}); err != nil {
		t.Errorf("count 10 should be allowed: %v", err)
	}
}

func TestRandomBlockClampsToCategorySize(t *testing.T) {
	f := newFixture()
	f.sequences["seq-1"] = &models.Sequence{
		ID:     "seq-1",
		Blocks: []models.BlockSpec{{Type: "random", CategoryID: "cat-small", Count: 5}},
	}
	r := New(f, zerolog.Nop())

	res, err := r.Resolve(Target{SequenceID: "seq-1"}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Files) != 3 {
		t.Fatalf("got %d files, want all 3 category members", len(res.Files))
	}
	seen := map[string]bool{}
	for _, fr := range res.Files {
		if seen[fr.PrerollID] {
			t.Fatalf("duplicate preroll %s in random sample", fr.PrerollID)
		}
		seen[fr.PrerollID] = true
	}
}

func TestFixedBlockSkipsDanglingReferences(t *testing.T) {
	f := newFixture()
	f.sequences["seq-2"] = &models.Sequence{
		ID:     "seq-2",
		Blocks: []models.BlockSpec{{Type: "fixed", PrerollIDs: []string{"p1", "ghost", "p2"}}},
	}
	r := New(f, zerolog.Nop())

	res, err := r.Resolve(Target{SequenceID: "seq-2"}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Files) != 2 {
		t.Fatalf("got %d files, want 2 (ghost skipped)", len(res.Files))
	}
	if res.Files[0].PrerollID != "p1" || res.Files[1].PrerollID != "p2" {
		t.Fatalf("fixed order not preserved: %+v", res.Files)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one dangling-reference warning", res.Warnings)
	}
}

func TestSequentialBlockDeterministicOrder(t *testing.T) {
	f := newFixture()
	f.sequences["seq-3"] = &models.Sequence{
		ID:     "seq-3",
		Blocks: []models.BlockSpec{{Type: "sequential", CategoryID: "cat-seq", Count: 2}},
	}
	r := New(f, zerolog.Nop())

	for i := 0; i < 5; i++ {
		res, err := r.Resolve(Target{SequenceID: "seq-3"}, rand.New(rand.NewSource(int64(i))))
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if len(res.Files) != 2 || res.Files[0].PrerollID != "s1" || res.Files[1].PrerollID != "s2" {
			t.Fatalf("sequential block not deterministic: %+v", res.Files)
		}
	}
}

func TestBlocksConcatenatePreservingDuplicates(t *testing.T) {
	f := newFixture()
	f.sequences["seq-4"] = &models.Sequence{
		ID: "seq-4",
		Blocks: []models.BlockSpec{
			{Type: "fixed", PrerollIDs: []string{"p1"}},
			{Type: "sequential", CategoryID: "cat-small", Count: 2},
		},
	}
	r := New(f, zerolog.Nop())

	res, err := r.Resolve(Target{SequenceID: "seq-4"}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"p1", "p1", "p2"}
	if len(res.Files) != len(want) {
		t.Fatalf("got %d files, want %d", len(res.Files), len(want))
	}
	for i, id := range want {
		if res.Files[i].PrerollID != id {
			t.Fatalf("files[%d] = %s, want %s (duplicates across blocks must survive)", i, res.Files[i].PrerollID, id)
		}
	}
}

func TestEmptySequenceRejected(t *testing.T) {
	f := newFixture()
	f.sequences["seq-empty"] = &models.Sequence{ID: "seq-empty"}
	r := New(f, zerolog.Nop())

	if _, err := r.Resolve(Target{SequenceID: "seq-empty"}, nil); err == nil {
		t.Fatal("sequence without blocks must fail resolution")
	}
}

func TestPlainCategoryTarget(t *testing.T) {
	f := newFixture()
	r := New(f, zerolog.Nop())

	res, err := r.Resolve(Target{CategoryID: "cat-seq"}, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Mode != models.PlaybackSequential {
		t.Fatalf("mode = %s, want category's sequential mode", res.Mode)
	}
	if len(res.Files) != 4 {
		t.Fatalf("got %d files, want all 4 members", len(res.Files))
	}
	for i, id := range []string{"s1", "s2", "s3", "s4"} {
		if res.Files[i].PrerollID != id {
			t.Fatalf("sequential category order broken: %+v", res.Files)
		}
	}
}

func TestEmptyCategoryIsNothingToApply(t *testing.T) {
	f := newFixture()
	f.categories["cat-empty"] = &models.Category{ID: "cat-empty", PlaybackMode: models.PlaybackRandom}
	r := New(f, zerolog.Nop())

	res, err := r.Resolve(Target{CategoryID: "cat-empty"}, nil)
	if err != nil {
		t.Fatalf("empty category must not error: %v", err)
	}
	if len(res.Files) != 0 {
		t.Fatalf("expected no files, got %+v", res.Files)
	}
}
