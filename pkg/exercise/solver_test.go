package exercise

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/orthoforge/pkg/browser"
	"github.com/entrhq/orthoforge/pkg/browser/browsertest"
	"github.com/entrhq/orthoforge/pkg/config"
	"github.com/entrhq/orthoforge/pkg/llm"
)

const (
	sentenceSel  = ".sentence"
	noMistakeSel = ".noMistakeButton"
	nextSel      = ".nextButton"
	finishSel    = ".exitButton"
)

func newTestSolver(t *testing.T, client llm.Client, opts ...func(*Options)) *Solver {
	t.Helper()

	timing := config.DefaultConfig().Timing
	timing.ThinkMin = 0
	timing.ThinkMax = 0
	timing.NextRetryDelay = 0

	o := Options{
		LLM:       client,
		Selectors: config.DefaultSelectors(),
		Timing:    timing,
		MaxSolves: 4,
		Sleep:     noSleep,
	}
	for _, fn := range opts {
		fn(&o)
	}

	s, err := NewSolver(o)
	require.NoError(t, err)
	return s
}

// exercisePage returns a page showing one sentence and a next control.
func exercisePage(html string) *browsertest.FakePage {
	page := browsertest.NewPage()
	page.SetURL("https://www.projet-voltaire.fr/exercise")
	page.Set(sentenceSel, &browsertest.Element{Visible: true, HTML: html})
	page.Set(nextSel, &browsertest.Element{Visible: true})
	return page
}

func correction(action, value string) *llm.Correction {
	return &llm.Correction{Action: action, Value: value}
}

func TestNewSolver_InvalidMaxSolves(t *testing.T) {
	_, err := NewSolver(Options{LLM: &MockLLMClient{}, MaxSolves: 0})
	require.Error(t, err)
}

func TestSolve_NoMistakeClicksOnlyTheControl(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, "Il est parti tôt.").Return(correction("no_mistake", ""), nil)

	page := exercisePage(`Il est parti <span class="pointAndClickSpan">tôt</span>.`)
	page.Set(noMistakeSel, &browsertest.Element{Visible: true})

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.Success)
	assert.False(t, out.RestartBrowser)
	assert.NoError(t, out.Err)
	assert.Equal(t, []string{noMistakeSel, nextSel}, page.Clicked())
	client.AssertExpectations(t)
}

func TestSolve_ValidateRuleClicksNoMistake(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).
		Return(&llm.Correction{Action: "validate_rule", RuleID: "12"}, nil)

	page := exercisePage("Il est parti tôt.")
	page.Set(noMistakeSel, &browsertest.Element{Visible: true})

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.Success)
	assert.Equal(t, []string{noMistakeSel, nextSel}, page.Clicked())
}

func TestSolve_ClickWordFallsBackToFirstSegment(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("click_word", "pourtant-donc"), nil)

	page := exercisePage(`Il pleut, <span class="pointAndClickSpan">pourtant</span> il sort.`)
	word := `.sentence .pointAndClickSpan:text-is("pourtant")`
	page.Set(word, &browsertest.Element{Visible: true})

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.Success)
	assert.Equal(t, []string{word, nextSel}, page.Clicked())
	client.AssertNotCalled(t, "GetErrorReportSuggestion", mock.Anything, mock.Anything)
}

func TestSolve_ClickWordExactMatch(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("click_word", "pomme"), nil)

	page := exercisePage("Il a mangé les pomme.")
	word := `.sentence .pointAndClickSpan:text-is("pomme")`
	el := page.Set(word, &browsertest.Element{Visible: true})

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.Success)
	assert.Equal(t, 1, el.Clicks())
}

func TestSolve_UnrecognizedActionSkipsRecovery(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("teleport", "mars"), nil)

	page := exercisePage("Il est parti tôt.")

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.False(t, out.Success)
	assert.False(t, out.RestartBrowser)
	assert.ErrorIs(t, out.Err, ErrUnrecognizedAction)
	assert.Empty(t, page.Clicked())
	client.AssertNotCalled(t, "GetErrorReportSuggestion", mock.Anything, mock.Anything)
}

func TestSolve_FinishReportsComplete(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("no_mistake", ""), nil)

	page := exercisePage("Il est parti tôt.")
	page.Set(noMistakeSel, &browsertest.Element{Visible: true})
	page.Set(finishSel, &browsertest.Element{Visible: true})

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.Success)
	assert.True(t, out.ExerciseComplete)
	assert.Equal(t, []string{noMistakeSel}, page.Clicked())
}

func TestSolve_NextShowsUpOnLaterAttempt(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("no_mistake", ""), nil)

	page := exercisePage("Il est parti tôt.")
	next := page.Set(nextSel, &browsertest.Element{Visible: false})
	page.Set(noMistakeSel, &browsertest.Element{Visible: true})

	var sleeps atomic.Int32
	s := newTestSolver(t, client, func(o *Options) {
		o.Sleep = func(ctx context.Context, d time.Duration) error {
			if sleeps.Add(1) == 3 {
				// The delay before answering is the first sleep.
				page.Set(nextSel, &browsertest.Element{Visible: true})
			}
			return nil
		}
	})

	out := s.SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.Success)
	assert.Equal(t, 0, next.Clicks())
	assert.Equal(t, []string{noMistakeSel, nextSel}, page.Clicked())
	client.AssertNotCalled(t, "GetErrorReportSuggestion", mock.Anything, mock.Anything)
}

func TestSolve_NextRetriesExhaustedAsksRecovery(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("no_mistake", ""), nil)
	client.On("GetErrorReportSuggestion", mock.Anything, mock.MatchedBy(func(r llm.ErrorReport) bool {
		return r.Context == "advance" && r.SessionID == "alice"
	})).Return(llm.NoAction, nil).Once()

	page := exercisePage("Il est parti tôt.")
	page.Remove(nextSel)
	page.Set(noMistakeSel, &browsertest.Element{Visible: true})

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.False(t, out.Success)
	assert.True(t, out.RestartBrowser)
	assert.ErrorIs(t, out.Err, ErrElementNotFound)
	client.AssertExpectations(t)
}

func TestSolve_NextRetriesExhaustedRecovered(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("no_mistake", ""), nil)
	client.On("GetErrorReportSuggestion", mock.Anything, mock.Anything).Return("Continuer", nil).Once()

	page := exercisePage("Il est parti tôt.")
	page.Remove(nextSel)
	page.Set(noMistakeSel, &browsertest.Element{Visible: true})
	page.Set(`text="Continuer"`, &browsertest.Element{Visible: true})

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.Success)
	assert.False(t, out.RestartBrowser)
	assert.Contains(t, page.Clicked(), `text="Continuer"`)
}

func TestSolve_ParseFailureRestartsWithoutSuggestion(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetErrorReportSuggestion", mock.Anything, mock.MatchedBy(func(r llm.ErrorReport) bool {
		return r.Context == "parse" && r.URL == "https://www.projet-voltaire.fr/exercise" && len(r.Screenshot) > 0
	})).Return("", nil)

	page := exercisePage("")
	page.Remove(sentenceSel)

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.RestartBrowser)
	assert.ErrorIs(t, out.Err, ErrParse)
	client.AssertNotCalled(t, "GetCorrection", mock.Anything, mock.Anything)
	client.AssertExpectations(t)
}

func TestSolve_MissingActionGoesToRecovery(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("", ""), nil)
	client.On("GetErrorReportSuggestion", mock.Anything, mock.Anything).Return("Continuer", nil)

	page := exercisePage("Il est parti tôt.")
	page.Set(`text="Continuer"`, &browsertest.Element{Visible: true})

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.False(t, out.Success)
	assert.False(t, out.RestartBrowser)
	assert.ErrorIs(t, out.Err, llm.ErrNoAction)
	assert.Equal(t, []string{`text="Continuer"`}, page.Clicked())
}

func TestSolve_LLMErrorGoesToRecovery(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(nil, errors.New("status 500"))
	client.On("GetErrorReportSuggestion", mock.Anything, mock.Anything).Return(llm.NoAction, nil)

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), exercisePage("Il est parti tôt."), "alice")

	assert.True(t, out.RestartBrowser)
	client.AssertNumberOfCalls(t, "GetErrorReportSuggestion", 1)
}

func TestSolve_MissingWordGoesToRecovery(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("click_word", "absent"), nil)
	client.On("GetErrorReportSuggestion", mock.Anything, mock.MatchedBy(func(r llm.ErrorReport) bool {
		return r.Context == ActionClickWord
	})).Return(llm.NoAction, nil)

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), exercisePage("Il est parti tôt."), "alice")

	assert.True(t, out.RestartBrowser)
	assert.ErrorIs(t, out.Err, ErrElementNotFound)
	client.AssertExpectations(t)
}

type panicParser struct{}

func (panicParser) Parse(context.Context, browser.Page) (*Exercise, error) {
	panic("boom")
}

func TestSolve_PanicAlwaysRestarts(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetErrorReportSuggestion", mock.Anything, mock.Anything).Return("Continuer", nil)

	page := exercisePage("Il est parti tôt.")
	page.Set(`text="Continuer"`, &browsertest.Element{Visible: true})

	s := newTestSolver(t, client, func(o *Options) { o.Parser = panicParser{} })
	out := s.SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.RestartBrowser)
	assert.ErrorIs(t, out.Err, errStepPanic)
	assert.Equal(t, []string{`text="Continuer"`}, page.Clicked())
	assert.Equal(t, 0, s.InFlight())
}

func TestSolve_ClosedPageRestarts(t *testing.T) {
	client := &MockLLMClient{}
	page := exercisePage("Il est parti tôt.")
	require.NoError(t, page.Close())

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.RestartBrowser)
	client.AssertNotCalled(t, "GetErrorReportSuggestion", mock.Anything, mock.Anything)
}

func TestSolve_SelectOption(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		setup   func(p *browsertest.FakePage)
		clicked string
	}{
		{
			name:  "native select",
			value: "quelle",
			setup: func(p *browsertest.FakePage) {
				p.Set(".sentence select", &browsertest.Element{Visible: true, Labels: []string{"quel", "quelle"}})
			},
		},
		{
			name:  "exact choice",
			value: "quelle",
			setup: func(p *browsertest.FakePage) {
				p.Set(".choiceButton",
					&browsertest.Element{Visible: true, Text: "quelle que"},
					&browsertest.Element{Visible: true, Text: " quelle "},
				)
			},
			clicked: ".choiceButton",
		},
		{
			name:  "contains ignoring case",
			value: "Quelque",
			setup: func(p *browsertest.FakePage) {
				p.Set(".choiceButton",
					&browsertest.Element{Visible: true, Text: "quel que"},
					&browsertest.Element{Visible: true, Text: "quelques-uns"},
				)
			},
			clicked: ".choiceButton",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockLLMClient{}
			client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("select_option", tt.value), nil)

			page := exercisePage(`Je ne sais <select><option>quel</option><option>quelle</option></select> heure.`)
			tt.setup(page)

			out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

			require.True(t, out.Success, "outcome error: %v", out.Err)
			if tt.clicked != "" {
				assert.Equal(t, []string{tt.clicked, nextSel}, page.Clicked())
			} else {
				assert.Equal(t, []string{nextSel}, page.Clicked())
			}
		})
	}
}

func TestSolve_SelectOptionPicksRightChoice(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("select_option", "quelle"), nil)

	page := exercisePage("Je ne sais quelle heure.")
	partial := &browsertest.Element{Visible: true, Text: "quelle que"}
	exact := &browsertest.Element{Visible: true, Text: "quelle"}
	page.Set(".choiceButton", partial, exact)

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	require.True(t, out.Success)
	assert.Equal(t, 0, partial.Clicks())
	assert.Equal(t, 1, exact.Clicks())
}

func TestSolve_SelectOptionNotFound(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("select_option", "dont"), nil)
	client.On("GetErrorReportSuggestion", mock.Anything, mock.Anything).Return(llm.NoAction, nil)

	page := exercisePage("Le livre que je parle.")
	page.Set(".choiceButton", &browsertest.Element{Visible: true, Text: "duquel"})

	out := newTestSolver(t, client).SolveSingleExercise(context.Background(), page, "alice")

	assert.True(t, out.RestartBrowser)
	assert.ErrorIs(t, out.Err, ErrElementNotFound)
}

func TestSolve_CancelledContext(t *testing.T) {
	client := &MockLLMClient{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newTestSolver(t, client).SolveSingleExercise(ctx, exercisePage("Il est parti tôt."), "alice")

	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.False(t, out.RestartBrowser)
	client.AssertNotCalled(t, "GetErrorReportSuggestion", mock.Anything, mock.Anything)
}

func TestSolve_SolveSlotsCapConcurrency(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
		Return(correction("no_mistake", ""), nil)

	s := newTestSolver(t, client, func(o *Options) { o.MaxSolves = 2 })

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page := exercisePage("Il est parti tôt.")
			page.Set(noMistakeSel, &browsertest.Element{Visible: true})
			out := s.SolveSingleExercise(context.Background(), page, fmt.Sprintf("account-%d", i))
			assert.True(t, out.Success)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, s.PeakInFlight(), 2)
	assert.Equal(t, 0, s.InFlight())
}

// countingParser records the highest number of overlapping Parse calls.
type countingParser struct {
	active atomic.Int32
	peak   atomic.Int32
}

func (p *countingParser) Parse(context.Context, browser.Page) (*Exercise, error) {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return &Exercise{Question: "Il est parti tôt."}, nil
}

func TestSolve_SameSessionIsSerialized(t *testing.T) {
	client := &MockLLMClient{}
	client.On("GetCorrection", mock.Anything, mock.Anything).Return(correction("no_mistake", ""), nil)

	parser := &countingParser{}
	s := newTestSolver(t, client, func(o *Options) { o.Parser = parser })

	page := exercisePage("Il est parti tôt.")
	page.Set(noMistakeSel, &browsertest.Element{Visible: true})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SolveSingleExercise(context.Background(), page, "alice")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), parser.peak.Load())
}

func TestFirstSegment(t *testing.T) {
	tests := map[string]string{
		"pourtant-donc": "pourtant",
		"bien que":      "bien",
		"pomme":         "pomme",
		"-":             "",
		"":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, firstSegment(in), in)
	}
}
