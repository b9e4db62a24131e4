// Package sponsorgraph walks the upward sponsor chain of the member forest.
//
// Walks are read-only and bounded: they stop at the end of the chain, after
// maxDepth hops, or when a node is seen twice. The last case only happens when
// the stored graph is corrupt, since sponsor assignment rejects cycles.
package sponsorgraph

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// DefaultMaxDepth bounds walks when the caller passes no limit.
const DefaultMaxDepth = 500

type Node struct {
	ID        snowflake.ID
	SponsorID *snowflake.ID
	IsAdmin   bool
	IsActive  bool
}

// Lookup resolves a node by id. A missing node is (nil, nil).
type Lookup interface {
	Node(ctx context.Context, id snowflake.ID) (*Node, error)
}

// Predicate decides whether node at depth (1 = first hop) is the one searched for.
type Predicate func(ctx context.Context, node Node, depth int) (bool, error)

type StopReason string

const (
	StopMatched    StopReason = "matched"
	StopChainEnd   StopReason = "chain_end"
	StopDepthLimit StopReason = "depth_limit"
	StopCycle      StopReason = "cycle"
)

type Result struct {
	Match *Node
	// Depth is the hop count of Match, or the deepest hop visited when nothing matched.
	Depth   int
	Visited []Node
	Reason  StopReason
}

// Exhausted reports whether the walk ended without a match.
func (r Result) Exhausted() bool {
	return r.Match == nil
}

// Walk starts at start and follows sponsor pointers until pred matches.
// A nil start yields an empty, exhausted result.
func Walk(ctx context.Context, lookup Lookup, start *snowflake.ID, pred Predicate, maxDepth int) (Result, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	res := Result{Reason: StopChainEnd}
	seen := make(map[snowflake.ID]struct{})
	next := start
	for depth := 1; next != nil && *next != 0; depth++ {
		if depth > maxDepth {
			res.Reason = StopDepthLimit
			return res, nil
		}
		if _, ok := seen[*next]; ok {
			res.Reason = StopCycle
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		node, err := lookup.Node(ctx, *next)
		if err != nil {
			return res, err
		}
		if node == nil {
			return res, nil
		}
		seen[node.ID] = struct{}{}
		res.Visited = append(res.Visited, *node)
		res.Depth = depth

		ok, err := pred(ctx, *node, depth)
		if err != nil {
			return res, err
		}
		if ok {
			match := *node
			res.Match = &match
			res.Reason = StopMatched
			return res, nil
		}
		next = node.SponsorID
	}
	return res, nil
}

// Chain returns up to hops ancestors starting at start, nearest first.
func Chain(ctx context.Context, lookup Lookup, start *snowflake.ID, hops int) ([]Node, error) {
	if hops <= 0 {
		return nil, nil
	}
	res, err := Walk(ctx, lookup, start, func(context.Context, Node, int) (bool, error) {
		return false, nil
	}, hops)
	if err != nil {
		return nil, err
	}
	return res.Visited, nil
}

// Reaches reports whether target is start or one of its ancestors within maxDepth.
// Assigning target's sponsor to start would then close a cycle.
func Reaches(ctx context.Context, lookup Lookup, start, target snowflake.ID, maxDepth int) (bool, error) {
	res, err := Walk(ctx, lookup, &start, func(_ context.Context, n Node, _ int) (bool, error) {
		return n.ID == target, nil
	}, maxDepth)
	if err != nil {
		return false, err
	}
	if res.Reason == StopCycle || res.Reason == StopDepthLimit {
		// The upline is already corrupt or too deep to prove acyclic.
		return true, nil
	}
	return res.Match != nil, nil
}
