package temporal

import (
	"sort"
	"sync"
	"time"

	"bibtag/internal/roster"
)

// Config tunes burst detection and correction.
type Config struct {
	// ClusterGap is the maximum capture-time spacing between members of one
	// burst.
	ClusterGap time.Duration
	// LowConfidence marks guesses eligible for revision.
	LowConfidence float64
	// NeighborFloor is the minimum confidence for a neighbor to vote.
	NeighborFloor float64
	// Supermajority is the vote fraction required to revise.
	Supermajority float64
	// MaxWait bounds how long an unresolved cluster can hold up correction
	// before items proceed uncorrected.
	MaxWait time.Duration
}

// Observation is one photo's recognition outcome, keyed by work item.
type Observation struct {
	ItemID      int64
	CaptureTime time.Time
	Number      string
	Confidence  float64
}

type cluster struct {
	members   []Observation // sorted by capture time
	lastGrown time.Time     // wall clock of the most recent insert
}

func (c *cluster) start() time.Time { return c.members[0].CaptureTime }
func (c *cluster) end() time.Time   { return c.members[len(c.members)-1].CaptureTime }

// Index accumulates observations as recognition completes and groups them
// into clusters. Safe for concurrent use.
type Index struct {
	mu            sync.Mutex
	cfg           Config
	clusters      []*cluster
	byItem        map[int64]*cluster
	latestCapture time.Time
	ingestDone    bool
	upstreamIdle  bool

	now func() time.Time
}

// NewIndex constructs an empty index.
func NewIndex(cfg Config) *Index {
	return &Index{
		cfg:    cfg,
		byItem: make(map[int64]*cluster),
		now:    time.Now,
	}
}

// Observe inserts one recognition outcome. Out-of-order arrivals are placed
// by capture time: an observation bridging two clusters merges them.
func (x *Index) Observe(obs Observation) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if obs.CaptureTime.After(x.latestCapture) {
		x.latestCapture = obs.CaptureTime
	}

	var matching []*cluster
	for _, c := range x.clusters {
		if x.withinGap(obs.CaptureTime, c) {
			matching = append(matching, c)
		}
	}

	var home *cluster
	if len(matching) == 0 {
		home = &cluster{}
		x.clusters = append(x.clusters, home)
	} else {
		home = matching[0]
	}
	x.insert(home, obs)

	// An observation landing between two bursts can bridge them; fold the
	// rest into the first match.
	if len(matching) > 1 {
		for _, c := range matching[1:] {
			for _, member := range c.members {
				x.insert(home, member)
				x.byItem[member.ItemID] = home
			}
			x.removeCluster(c)
		}
	}

	home.lastGrown = x.now()
	x.byItem[obs.ItemID] = home
}

// MarkIngestComplete records that no further observations will arrive, which
// closes every cluster immediately.
func (x *Index) MarkIngestComplete() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ingestDone = true
}

// SetUpstreamIdle records whether any queued photos are still working toward
// recognition. While work remains upstream, capture-gap evidence alone never
// closes a cluster: photos complete recognition out of capture order, so a
// burst's true neighbors may still be in flight when a much newer capture has
// already been observed.
func (x *Index) SetUpstreamIdle(idle bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.upstreamIdle = idle
}

// Resolvable reports whether the item's cluster is closed: ingest has
// finished, nothing upstream can still observe and a newer capture lies
// beyond the gap window, or the cluster has not grown within MaxWait.
// Unknown items are trivially resolvable so a missing observation never
// wedges the pipeline.
func (x *Index) Resolvable(itemID int64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	c, ok := x.byItem[itemID]
	if !ok {
		return true
	}
	if x.ingestDone {
		return true
	}
	if x.upstreamIdle && x.latestCapture.Sub(c.end()) > x.cfg.ClusterGap {
		return true
	}
	return x.now().Sub(c.lastGrown) > x.cfg.MaxWait
}

func (x *Index) withinGap(t time.Time, c *cluster) bool {
	gap := x.cfg.ClusterGap
	return t.After(c.start().Add(-gap-1)) && t.Before(c.end().Add(gap+1))
}

func (x *Index) insert(c *cluster, obs Observation) {
	i := sort.Search(len(c.members), func(i int) bool {
		return c.members[i].CaptureTime.After(obs.CaptureTime)
	})
	c.members = append(c.members, Observation{})
	copy(c.members[i+1:], c.members[i:])
	c.members[i] = obs
}

func (x *Index) removeCluster(target *cluster) {
	for i, c := range x.clusters {
		if c == target {
			x.clusters = append(x.clusters[:i], x.clusters[i+1:]...)
			return
		}
	}
}

// ClusterSize returns the burst size the item belongs to, for logging.
func (x *Index) ClusterSize(itemID int64) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	if c, ok := x.byItem[itemID]; ok {
		return len(c.members)
	}
	return 0
}

// Decision records the correction outcome for one item.
type Decision struct {
	Revised   bool
	Number    string
	Consensus float64
	Voters    int
	Reason    string
}

// Correct evaluates neighbor consensus for the item. The second return is
// false when the item was never observed. Correction only ever adopts a
// number present in a qualifying neighbor's guess.
func (x *Index) Correct(itemID int64) (Decision, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	c, ok := x.byItem[itemID]
	if !ok {
		return Decision{}, false
	}

	var subject Observation
	found := false
	for _, member := range c.members {
		if member.ItemID == itemID {
			subject = member
			found = true
			break
		}
	}
	if !found {
		return Decision{}, false
	}

	if subject.Confidence >= x.cfg.LowConfidence {
		return Decision{Reason: "confidence above revision threshold"}, true
	}

	votes := map[string]int{}
	sample := map[string]string{}
	voters := 0
	for _, member := range c.members {
		if member.ItemID == itemID {
			continue
		}
		if member.Confidence < x.cfg.NeighborFloor {
			continue
		}
		key := roster.NormalizeNumber(member.Number)
		if key == "" {
			continue
		}
		votes[key]++
		if _, ok := sample[key]; !ok {
			sample[key] = member.Number
		}
		voters++
	}
	if voters == 0 {
		return Decision{Reason: "no confident neighbors"}, true
	}

	bestKey := ""
	bestCount := 0
	for key, count := range votes {
		if count > bestCount || (count == bestCount && key < bestKey) {
			bestKey = key
			bestCount = count
		}
	}

	consensus := float64(bestCount) / float64(voters)
	if consensus < x.cfg.Supermajority {
		return Decision{Consensus: consensus, Voters: voters, Reason: "neighbors disagree"}, true
	}
	if bestKey == roster.NormalizeNumber(subject.Number) {
		return Decision{Consensus: consensus, Voters: voters, Reason: "neighbors agree with original guess"}, true
	}

	return Decision{
		Revised:   true,
		Number:    sample[bestKey],
		Consensus: consensus,
		Voters:    voters,
		Reason:    "neighbor supermajority",
	}, true
}
