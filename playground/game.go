// Package playground is a small visual exercise of the job system: a grid of
// tiles, one sleeping job per tile, each tile showing its job's status.
package playground

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/jirevwe/litejob"
)

const (
	MapSizeX   = 40
	MapSizeY   = 20
	NumOfTiles = MapSizeX * MapSizeY
)

// Options control the demo workload.
type Options struct {
	MinSleep time.Duration
	MaxSleep time.Duration
	Color    bool
	Rand     *rand.Rand
}

// DefaultOptions mirrors the classic demo: jobs sleep 50ms to 3s.
func DefaultOptions() Options {
	return Options{
		MinSleep: 50 * time.Millisecond,
		MaxSleep: 3 * time.Second,
	}
}

// Tile is one cell of the grid.
type Tile struct {
	X, Y   int
	Status litejob.Status
}

// Game owns the tiles and their jobs. It is driven from a single goroutine,
// one Update per frame.
type Game struct {
	system *litejob.JobSystem
	opts   Options
	rng    *rand.Rand

	tiles [NumOfTiles]Tile
	jobs  [NumOfTiles]*litejob.Job

	retrieved []*litejob.Job
}

func NewGame(system *litejob.JobSystem, opts Options) *Game {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.MaxSleep < opts.MinSleep {
		opts.MaxSleep = opts.MinSleep
	}

	g := &Game{system: system, opts: opts, rng: rng}
	for i := range g.tiles {
		x, y := TileCoords(i)
		g.tiles[i] = Tile{X: x, Y: y}
	}
	return g
}

// TileCoords maps a tile index to its grid coordinates.
func TileCoords(tileIndex int) (x, y int) {
	return tileIndex % MapSizeX, tileIndex / MapSizeX
}

// CreateTestJobs submits one job per tile with a random sleep.
func (g *Game) CreateTestJobs() error {
	for i := range g.tiles {
		x, y := TileCoords(i)
		job := litejob.NewJob(NewTestJob(x, y, g.randomSleep()))
		if err := g.system.QueueNewJob(job); err != nil {
			return fmt.Errorf("cannot queue job for tile (%d, %d): %w", x, y, err)
		}
		g.jobs[i] = job
	}
	return nil
}

func (g *Game) randomSleep() time.Duration {
	span := g.opts.MaxSleep - g.opts.MinSleep
	if span <= 0 {
		return g.opts.MinSleep
	}
	return g.opts.MinSleep + time.Duration(g.rng.Int64N(int64(span)+1))
}

// UpdateTestJobs drains every completed job and returns how many came back
// this frame.
func (g *Game) UpdateTestJobs() int {
	n := 0
	for {
		job := g.system.RetrieveCompletedJob()
		if job == nil {
			return n
		}
		g.retrieved = append(g.retrieved, job)
		n++
	}
}

// UpdateTileStatus copies each job's current status onto its tile.
func (g *Game) UpdateTileStatus() {
	for i, job := range g.jobs {
		if job == nil {
			continue
		}
		g.tiles[i].Status = job.Status()
	}
}

// Update runs one frame.
func (g *Game) Update() {
	g.UpdateTestJobs()
	g.UpdateTileStatus()
}

// Done reports whether every job has been retrieved.
func (g *Game) Done() bool {
	return len(g.retrieved) == NumOfTiles
}

// Retrieved returns the jobs handed back so far, in retrieval order.
func (g *Game) Retrieved() []*litejob.Job {
	return g.retrieved
}

// Tiles returns a copy of the grid.
func (g *Game) Tiles() []Tile {
	out := make([]Tile, len(g.tiles))
	copy(out, g.tiles[:])
	return out
}

// Counts tallies tiles by status as of the last UpdateTileStatus.
func (g *Game) Counts() map[litejob.Status]int {
	counts := make(map[litejob.Status]int)
	for _, t := range g.tiles {
		counts[t.Status]++
	}
	return counts
}

var glyphs = map[litejob.Status]byte{
	litejob.StatusCreated:             ' ',
	litejob.StatusQueued:              '.',
	litejob.StatusClaimedExecuting:    '*',
	litejob.StatusCompleted:           '+',
	litejob.StatusRetrievedAndRetired: '#',
}

var colors = map[litejob.Status]string{
	litejob.StatusQueued:              "\033[41m",
	litejob.StatusClaimedExecuting:    "\033[43m",
	litejob.StatusCompleted:           "\033[42m",
	litejob.StatusRetrievedAndRetired: "\033[44m",
}

const colorReset = "\033[0m"

// Render draws the grid, top row last so y grows upwards, followed by a
// status line.
func (g *Game) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)

	for y := MapSizeY - 1; y >= 0; y-- {
		for x := 0; x < MapSizeX; x++ {
			status := g.tiles[y*MapSizeX+x].Status
			if g.opts.Color {
				if c, ok := colors[status]; ok {
					bw.WriteString(c)
					bw.WriteByte(' ')
					bw.WriteString(colorReset)
					continue
				}
			}
			bw.WriteByte(glyphs[status])
		}
		bw.WriteByte('\n')
	}

	counts := g.Counts()
	fmt.Fprintf(bw, "queued %d  executing %d  completed %d  retired %d\n",
		counts[litejob.StatusQueued],
		counts[litejob.StatusClaimedExecuting],
		counts[litejob.StatusCompleted],
		counts[litejob.StatusRetrievedAndRetired],
	)

	return bw.Flush()
}
