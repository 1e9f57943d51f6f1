package process

import (
	"context"
	"errors"
	"fmt"
	"strings"

	psprocess "github.com/shirou/gopsutil/v4/process"
)

// Resolver supplies the ordered set of targets for one profiling run.
// Order matters: samplers are created and stopped in this order.
type Resolver interface {
	Resolve(ctx context.Context) ([]Target, error)
}

// StaticResolver returns a fixed list of targets.
type StaticResolver []Target

// Resolve returns a copy of the configured targets.
func (s StaticResolver) Resolve(ctx context.Context) ([]Target, error) {
	out := make([]Target, len(s))
	copy(out, s)
	return out, nil
}

// ProcessTable is the slice of the OS process table the browser resolver
// needs. Implemented by SystemProcessTable; replaced in tests.
type ProcessTable interface {
	Children(ctx context.Context, pid int32) ([]int32, error)
	Cmdline(ctx context.Context, pid int32) ([]string, error)
}

// SystemProcessTable reads the live process table through gopsutil.
type SystemProcessTable struct{}

// Children returns the direct children of pid.
func (SystemProcessTable) Children(ctx context.Context, pid int32) ([]int32, error) {
	p, err := psprocess.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		if errors.Is(err, psprocess.ErrorNoChildren) {
			return nil, nil
		}
		return nil, err
	}
	pids := make([]int32, 0, len(children))
	for _, c := range children {
		pids = append(pids, c.Pid)
	}
	return pids, nil
}

// Cmdline returns the argv of pid.
func (SystemProcessTable) Cmdline(ctx context.Context, pid int32) ([]string, error) {
	p, err := psprocess.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	return p.CmdlineSliceWithContext(ctx)
}

// PIDExists reports whether pid is a live process.
func PIDExists(ctx context.Context, pid int) bool {
	ok, err := psprocess.PidExistsWithContext(ctx, int32(pid))
	return err == nil && ok
}

// BrowserResolver maps a multi-process browser to one target per process.
//
// The browser and all its descendants are visited depth-first, browser
// first. Each process gets "<OutputPath>.<role><n>" where role comes from
// the --type= switch ("browser" when absent) and n counts per role.
type BrowserResolver struct {
	BrowserPID int
	OutputPath string
	Table      ProcessTable
}

// NewBrowserResolver creates a resolver over the live process table.
func NewBrowserResolver(browserPID int, outputPath string) *BrowserResolver {
	return &BrowserResolver{
		BrowserPID: browserPID,
		OutputPath: outputPath,
		Table:      SystemProcessTable{},
	}
}

// Resolve walks the process tree rooted at BrowserPID.
func (r *BrowserResolver) Resolve(ctx context.Context) ([]Target, error) {
	if r.BrowserPID <= 0 {
		return nil, errors.New("browser pid must be positive")
	}
	if r.OutputPath == "" {
		return nil, errors.New("output path is required")
	}

	pids, err := r.descendants(ctx, int32(r.BrowserPID))
	if err != nil {
		return nil, fmt.Errorf("list processes of browser %d: %w", r.BrowserPID, err)
	}

	counts := make(map[string]int)
	targets := make([]Target, 0, len(pids))
	for _, pid := range pids {
		role := "browser"
		// A child that exits mid-walk keeps the default role
		if argv, err := r.Table.Cmdline(ctx, pid); err == nil {
			role = ProcessRole(argv)
		}
		targets = append(targets, Target{
			PID:        int(pid),
			Name:       role,
			OutputPath: fmt.Sprintf("%s.%s%d", r.OutputPath, role, counts[role]),
		})
		counts[role]++
	}
	return targets, nil
}

// descendants returns root followed by every descendant, depth-first.
func (r *BrowserResolver) descendants(ctx context.Context, root int32) ([]int32, error) {
	out := []int32{root}
	seen := map[int32]bool{root: true}
	stack := []int32{root}

	for len(stack) > 0 {
		pid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if pid != root {
			out = append(out, pid)
		}

		children, err := r.Table.Children(ctx, pid)
		if err != nil {
			if pid == root {
				return nil, err
			}
			continue
		}
		// Push in reverse so the first child is visited first
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			if seen[c] {
				continue
			}
			seen[c] = true
			stack = append(stack, c)
		}
	}
	return out, nil
}

// ProcessRole extracts the value of a --type= switch from argv.
// Processes without one are the browser process itself.
func ProcessRole(argv []string) string {
	for _, arg := range argv {
		if v, ok := strings.CutPrefix(arg, "--type="); ok && v != "" {
			return v
		}
	}
	return "browser"
}
