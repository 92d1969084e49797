/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sequence expands a category or block sequence into the concrete
// ordered list of preroll files to hand to the path translator.
package sequence

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/rs/zerolog"
)

// ErrUnknownBlockType indicates a stored block with an unrecognized tag.
var ErrUnknownBlockType = errors.New("unknown sequence block type")

// Block is the tagged union a stored BlockSpec decodes into.
type Block interface {
	isBlock()
}

// RandomBlock picks Count distinct prerolls uniformly at random from a
// category. Count is clamped to [1, 10] at decode time.
type RandomBlock struct {
	CategoryID string
	Count      int
}

// FixedBlock reproduces exact files in exact order.
type FixedBlock struct {
	PrerollIDs []string
}

// SequentialBlock picks Count prerolls in deterministic ascending ID order.
type SequentialBlock struct {
	CategoryID string
	Count      int
}

func (RandomBlock) isBlock()     {}
func (FixedBlock) isBlock()      {}
func (SequentialBlock) isBlock() {}

const maxBlockCount = 10

// DecodeBlock converts a stored spec into the tagged union, rejecting
// unknown tags and out-of-range counts.
func DecodeBlock(spec models.BlockSpec) (Block, error) {
	switch spec.Type {
	case "random":
		if spec.CategoryID == "" {
			return nil, fmt.Errorf("random block missing category_id")
		}
		if spec.Count < 1 || spec.Count > maxBlockCount {
			return nil, fmt.Errorf("random block count %d out of range [1,%d]", spec.Count, maxBlockCount)
		}
		return RandomBlock{CategoryID: spec.CategoryID, Count: spec.Count}, nil
	case "fixed":
		if len(spec.PrerollIDs) == 0 {
			return nil, fmt.Errorf("fixed block has no preroll ids")
		}
		return FixedBlock{PrerollIDs: spec.PrerollIDs}, nil
	case "sequential":
		if spec.CategoryID == "" {
			return nil, fmt.Errorf("sequential block missing category_id")
		}
		if spec.Count < 1 || spec.Count > maxBlockCount {
			return nil, fmt.Errorf("sequential block count %d out of range [1,%d]", spec.Count, maxBlockCount)
		}
		return SequentialBlock{CategoryID: spec.CategoryID, Count: spec.Count}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, spec.Type)
	}
}

// FileRef is one resolved preroll file.
type FileRef struct {
	PrerollID string `json:"preroll_id"`
	Path      string `json:"path"`
	Name      string `json:"name,omitempty"`
}

// Target names what to resolve: a plain category or a block sequence.
type Target struct {
	CategoryID string
	SequenceID string
}

// Index supplies the preroll/category/sequence records the resolver reads.
// The engine never mutates them.
type Index interface {
	CategoryByID(id string) (*models.Category, error)
	SequenceByID(id string) (*models.Sequence, error)
	PrerollByID(id string) (*models.Preroll, error)
	PrerollsInCategory(categoryID string) ([]models.Preroll, error)
}

// Result is a flat ordered file list plus non-fatal resolution warnings.
// Duplicates across blocks are preserved. An empty list for an empty
// category means "nothing to apply", not an error.
type Result struct {
	Files    []FileRef
	Mode     models.PlaybackMode
	Warnings []string
}

// Resolver expands targets against an index.
type Resolver struct {
	index  Index
	logger zerolog.Logger
}

// New creates a sequence resolver.
func New(index Index, logger zerolog.Logger) *Resolver {
	return &Resolver{index: index, logger: logger}
}

// Resolve expands the target. rng drives random block sampling; callers pass
// a seeded source for previews and tests.
func (r *Resolver) Resolve(target Target, rng *rand.Rand) (Result, error) {
	if target.SequenceID != "" {
		return r.resolveSequence(target.SequenceID, rng)
	}
	if target.CategoryID != "" {
		return r.resolveCategory(target.CategoryID, rng)
	}
	return Result{}, fmt.Errorf("empty resolve target")
}

// resolveCategory treats a plain category as one implicit block over all its
// members, using the category's playback mode.
func (r *Resolver) resolveCategory(categoryID string, rng *rand.Rand) (Result, error) {
	cat, err := r.index.CategoryByID(categoryID)
	if err != nil {
		return Result{}, fmt.Errorf("load category %s: %w", categoryID, err)
	}

	prerolls, err := r.index.PrerollsInCategory(categoryID)
	if err != nil {
		return Result{}, fmt.Errorf("load prerolls for category %s: %w", categoryID, err)
	}

	res := Result{Mode: cat.PlaybackMode}
	sortByID(prerolls)
	if cat.PlaybackMode == models.PlaybackRandom && rng != nil {
		rng.Shuffle(len(prerolls), func(i, j int) {
			prerolls[i], prerolls[j] = prerolls[j], prerolls[i]
		})
	}
	for _, p := range prerolls {
		res.Files = append(res.Files, fileRefOf(p))
	}
	return res, nil
}

func (r *Resolver) resolveSequence(sequenceID string, rng *rand.Rand) (Result, error) {
	seq, err := r.index.SequenceByID(sequenceID)
	if err != nil {
		return Result{}, fmt.Errorf("load sequence %s: %w", sequenceID, err)
	}
	if len(seq.Blocks) == 0 {
		return Result{}, fmt.Errorf("sequence %s has no blocks", sequenceID)
	}

	// Sequences produce an ordered playlist, so the dispatcher joins them
	// with the ordered delimiter.
	res := Result{Mode: models.PlaybackSequential}

	for i, spec := range seq.Blocks {
		block, err := DecodeBlock(spec)
		if err != nil {
			return Result{}, fmt.Errorf("sequence %s block %d: %w", sequenceID, i, err)
		}

		switch b := block.(type) {
		case FixedBlock:
			for _, id := range b.PrerollIDs {
				p, err := r.index.PrerollByID(id)
				if err != nil {
					warning := fmt.Sprintf("block %d references missing preroll %s", i, id)
					res.Warnings = append(res.Warnings, warning)
					r.logger.Warn().Str("sequence_id", sequenceID).Str("preroll_id", id).Msg("skipping dangling preroll reference")
					continue
				}
				res.Files = append(res.Files, fileRefOf(*p))
			}
		case RandomBlock:
			members, err := r.index.PrerollsInCategory(b.CategoryID)
			if err != nil {
				return Result{}, fmt.Errorf("sequence %s block %d: load category %s: %w", sequenceID, i, b.CategoryID, err)
			}
			for _, p := range sampleRandom(members, b.Count, rng) {
				res.Files = append(res.Files, fileRefOf(p))
			}
		case SequentialBlock:
			members, err := r.index.PrerollsInCategory(b.CategoryID)
			if err != nil {
				return Result{}, fmt.Errorf("sequence %s block %d: load category %s: %w", sequenceID, i, b.CategoryID, err)
			}
			sortByID(members)
			if b.Count < len(members) {
				members = members[:b.Count]
			}
			for _, p := range members {
				res.Files = append(res.Files, fileRefOf(p))
			}
		}
	}

	return res, nil
}

// sampleRandom picks count distinct prerolls without replacement. A category
// smaller than count returns all members.
func sampleRandom(members []models.Preroll, count int, rng *rand.Rand) []models.Preroll {
	picked := make([]models.Preroll, len(members))
	copy(picked, members)

	if rng != nil {
		rng.Shuffle(len(picked), func(i, j int) {
			picked[i], picked[j] = picked[j], picked[i]
		})
	}

	if count < len(picked) {
		picked = picked[:count]
	}
	return picked
}

func sortByID(prerolls []models.Preroll) {
	sort.Slice(prerolls, func(i, j int) bool {
		return prerolls[i].ID < prerolls[j].ID
	})
}

func fileRefOf(p models.Preroll) FileRef {
	return FileRef{PrerollID: p.ID, Path: p.Path, Name: p.Name}
}
