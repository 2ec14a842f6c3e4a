package tape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

// ErrTapeExhausted indicates the tape has no more turns to replay.
var ErrTapeExhausted = errors.New("tape exhausted: no more turns to replay")

// ErrToolNotInTape indicates a tool call is not found in the tape.
var ErrToolNotInTape = errors.New("tool call not found in tape")

// ReplayMode controls how strictly the replayer matches requests.
type ReplayMode int

const (
	// ReplayLoose ignores request differences and just returns recorded responses
	ReplayLoose ReplayMode = iota

	// ReplayStrict records a Mismatch whenever the live request or tool call
	// differs from the recording.
	ReplayStrict
)

// Mismatch records a difference between expected and actual values.
type Mismatch struct {
	TurnIndex int    `json:"turn_index"`
	Field     string `json:"field"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
}

// Replayer serves a recorded tape. It satisfies agent.ModelCaller and
// agent.ToolRunner; tool calls return the recorded results without touching
// the desktop.
type Replayer struct {
	tape *Tape
	mode ReplayMode

	mu         sync.Mutex
	turnIdx    int
	toolRunIdx map[int]int // turnIndex -> next tool run index for that turn
	mismatches []Mismatch
}

// NewReplayer creates a replayer from a tape.
func NewReplayer(tape *Tape) *Replayer {
	return &Replayer{
		tape:       tape.Clone(),
		mode:       ReplayLoose,
		toolRunIdx: make(map[int]int),
	}
}

// WithMode sets the replay mode.
func (r *Replayer) WithMode(mode ReplayMode) *Replayer {
	r.mode = mode
	return r
}

// Create implements agent.ModelCaller, returning the next recorded response.
func (r *Replayer) Create(ctx context.Context, req agent.ModelRequest) (*agent.ModelResponse, error) {
	exchange := agent.Exchange{Provider: "tape", Model: r.tape.Model}
	if err := ctx.Err(); err != nil {
		return nil, &agent.TransportError{Exchange: exchange, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turnIdx >= len(r.tape.Turns) {
		return nil, &agent.TransportError{Exchange: exchange, Err: ErrTapeExhausted}
	}
	turn := r.tape.Turns[r.turnIdx]
	r.turnIdx++

	if r.mode == ReplayStrict && turn.Messages != len(req.Messages) {
		r.mismatches = append(r.mismatches, Mismatch{
			TurnIndex: turn.Index,
			Field:     "message_count",
			Expected:  fmt.Sprintf("%d", turn.Messages),
			Actual:    fmt.Sprintf("%d", len(req.Messages)),
		})
	}

	exchange.StatusCode = 200
	exchange.StopReason = turn.StopReason
	exchange.Usage = turn.Usage
	return &agent.ModelResponse{Message: turn.Response, Exchange: exchange}, nil
}

// Run implements agent.ToolRunner, returning the next recorded result for
// the current turn.
func (r *Replayer) Run(_ context.Context, name string, input json.RawMessage) agent.ToolResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	turnIndex := r.turnIdx - 1
	if turnIndex < 0 {
		turnIndex = 0
	}
	runs := r.tape.GetToolRuns(turnIndex)
	runIdx := r.toolRunIdx[turnIndex]
	if runIdx >= len(runs) {
		return agent.ErrorResult(fmt.Sprintf("%v: %s at turn %d", ErrToolNotInTape, name, turnIndex))
	}
	run := runs[runIdx]
	r.toolRunIdx[turnIndex] = runIdx + 1

	if r.mode == ReplayStrict {
		if run.Name != name {
			r.mismatches = append(r.mismatches, Mismatch{
				TurnIndex: turnIndex, Field: "tool_name", Expected: run.Name, Actual: name,
			})
		}
		if !jsonEqual(run.Input, input) {
			r.mismatches = append(r.mismatches, Mismatch{
				TurnIndex: turnIndex, Field: "tool_input", Expected: string(run.Input), Actual: string(input),
			})
		}
	}
	return run.Result
}

// Descriptors implements agent.ToolRunner with the recorded descriptors.
func (r *Replayer) Descriptors() []agent.ToolDescriptor {
	return append([]agent.ToolDescriptor(nil), r.tape.Tools...)
}

// Mismatches returns any recorded mismatches from strict mode.
func (r *Replayer) Mismatches() []Mismatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mismatch{}, r.mismatches...)
}

// Reset resets the replayer to the beginning.
func (r *Replayer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turnIdx = 0
	r.toolRunIdx = make(map[int]int)
	r.mismatches = nil
}

// CurrentTurn returns the number of turns served so far.
func (r *Replayer) CurrentTurn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turnIdx
}

func jsonEqual(a, b json.RawMessage) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return string(a) == string(b)
	}
	ja, _ := json.Marshal(va)
	jb, _ := json.Marshal(vb)
	return string(ja) == string(jb)
}
