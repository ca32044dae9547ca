package lexatom

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cognicore/lexatom/pkg/lexatom/idmap"
	"github.com/cognicore/lexatom/pkg/lexatom/ingest"
	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/reasoning"
	"github.com/cognicore/lexatom/pkg/lexatom/reasoning/embedded"
	"github.com/cognicore/lexatom/pkg/lexatom/reasoning/reasoningtest"
	"github.com/cognicore/lexatom/pkg/lexatom/store"
	"github.com/cognicore/lexatom/pkg/lexatom/store/memstore"
	"github.com/cognicore/lexatom/pkg/lexatom/validate"
)

const breachText = "The controller shall notify the authority."

const atomsReply = `<result>
<annotated>The <atom id="1">controller</atom> shall notify the <atom id="2">authority</atom>.</annotated>
<atoms>
  <atom id="1"><predicate>controller(C)</predicate><description>C is a controller</description><is_fact>true</is_fact></atom>
  <atom id="2"><predicate>authority(A)</predicate><description>A is an authority</description><is_fact>true</is_fact></atom>
</atoms>
</result>`

func rulesReply(rule string) string {
	return `<result>
<rules><rule><definition>` + rule + `</definition><description>notify duty</description></rule></rules>
<goals><rule><definition>compliant(C) :- must_notify(C, _).</definition><description>compliance</description></rule></goals>
</result>`
}

// scriptedModel answers with canned replies and records every conversation.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	calls   [][]Message
}

func (m *scriptedModel) Complete(_ context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]Message(nil), messages...))
	if len(m.replies) == 0 {
		return "", errors.New("no scripted reply left")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

func newTest(t *testing.T, model Model, r reasoning.Reasoner, opts ...func(*Options)) (*Lexatom, store.Fragment) {
	t.Helper()
	o := Options{Store: memstore.New(), Model: model, Reasoner: r, Logger: zaptest.NewLogger(t)}
	for _, fn := range opts {
		fn(&o)
	}
	l := New(o)
	frag, err := l.AddFragment(context.Background(), ingest.FromText("Art. 33", breachText))
	require.NoError(t, err)
	return l, frag
}

func TestAddFragmentValidates(t *testing.T) {
	l := New(Options{Store: memstore.New()})
	_, err := l.AddFragment(context.Background(), ingest.Fragment{Title: "empty"})
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}

func TestGenerateAtoms(t *testing.T) {
	ctx := context.Background()
	model := &scriptedModel{replies: []string{atomsReply}}
	l, frag := newTest(t, model, nil)

	atoms, err := l.GenerateAtoms(ctx, frag.ID)
	require.NoError(t, err)
	require.Len(t, atoms, 2)
	assert.Equal(t, "controller(C)", atoms[0].Predicate)
	assert.True(t, atoms[0].IsFact)
	assert.Contains(t, model.calls[0][0].Content, breachText)

	spans, err := l.store.ListSpans(ctx, frag.ID)
	require.NoError(t, err)
	assert.Equal(t, []idmap.PersistedSpan{
		{AtomID: atoms[0].ID, Start: 4, End: 14},
		{AtomID: atoms[1].ID, Start: 32, End: 41},
	}, spans)

	annotated, err := l.AnnotatedFragment(ctx, frag.ID)
	require.NoError(t, err)
	assert.Equal(t, `The <atom id="1">controller</atom> shall notify the <atom id="2">authority</atom>.`, annotated)

	// A second run leaves the atoms alone and does not ask the model.
	again, err := l.GenerateAtoms(ctx, frag.ID)
	require.NoError(t, err)
	assert.Equal(t, atoms, again)
	assert.Len(t, model.calls, 1)
}

func TestGenerateAtomsRejectsDanglingMarker(t *testing.T) {
	reply := `<result><annotated>The <atom id="5">controller</atom> shall notify the authority.</annotated>
<atoms><atom id="1"><predicate>controller(C)</predicate></atom></atoms></result>`
	l, frag := newTest(t, &scriptedModel{replies: []string{reply}}, nil)

	_, err := l.GenerateAtoms(context.Background(), frag.ID)
	assert.ErrorIs(t, err, internalerr.ErrUnknownAtomReference)
	atoms, _ := l.Atoms(context.Background(), frag.ID)
	assert.Empty(t, atoms)
}

func TestGenerateAtomsRejectsMalformedPredicate(t *testing.T) {
	reply := `<result><annotated>x</annotated>
<atoms><atom id="1"><predicate>controller(C</predicate></atom></atoms></result>`
	l, frag := newTest(t, &scriptedModel{replies: []string{reply}}, nil)

	_, err := l.GenerateAtoms(context.Background(), frag.ID)
	assert.ErrorIs(t, err, internalerr.ErrMalformedTerm)
}

func TestGenerateAtomsRejectsAlteredText(t *testing.T) {
	reply := `<result><annotated>The data <atom id="1">controller</atom> shall notify the <atom id="2">authority</atom>.</annotated>
<atoms>
  <atom id="1"><predicate>controller(C)</predicate><is_fact>true</is_fact></atom>
  <atom id="2"><predicate>authority(A)</predicate><is_fact>true</is_fact></atom>
</atoms></result>`
	l, frag := newTest(t, &scriptedModel{replies: []string{reply}}, nil)

	_, err := l.GenerateAtoms(context.Background(), frag.ID)
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
	atoms, _ := l.Atoms(context.Background(), frag.ID)
	assert.Empty(t, atoms)
}

func TestRegenerateAtomsKeepsAtomsOnBadReply(t *testing.T) {
	ctx := context.Background()
	altered := `<result><annotated>The <atom id="1">controller</atom> must notify the authority.</annotated>
<atoms><atom id="1"><predicate>controller(C)</predicate></atom></atoms></result>`
	l, frag := newTest(t, &scriptedModel{replies: []string{atomsReply, altered}}, nil)

	before, err := l.GenerateAtoms(ctx, frag.ID)
	require.NoError(t, err)
	_, err = l.RegenerateAtoms(ctx, frag.ID, "")
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)

	after, err := l.Atoms(ctx, frag.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	annotated, err := l.AnnotatedFragment(ctx, frag.ID)
	require.NoError(t, err)
	assert.Equal(t, `The <atom id="1">controller</atom> shall notify the <atom id="2">authority</atom>.`, annotated)
}

func TestRegenerateAtoms(t *testing.T) {
	ctx := context.Background()
	revised := `<result>
<annotated>The <atom id="1">controller shall notify</atom> the authority.</annotated>
<atoms><atom id="1"><predicate>must_notify(C, A)</predicate><description>duty</description><is_fact>false</is_fact></atom></atoms>
</result>`
	model := &scriptedModel{replies: []string{atomsReply, revised}}
	l, frag := newTest(t, model, nil)

	_, err := l.GenerateAtoms(ctx, frag.ID)
	require.NoError(t, err)
	atoms, err := l.RegenerateAtoms(ctx, frag.ID, "merge the duty into one atom")
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.Equal(t, "must_notify(C, A)", atoms[0].Predicate)

	prompt := model.calls[1][0].Content
	assert.Contains(t, prompt, `<atom id="1">controller</atom>`)
	assert.Contains(t, prompt, "<predicate>authority(A)</predicate>")
	assert.Contains(t, prompt, "merge the duty into one atom")

	annotated, err := l.AnnotatedFragment(ctx, frag.ID)
	require.NoError(t, err)
	assert.Equal(t, `The <atom id="1">controller shall notify</atom> the authority.`, annotated)
}

func TestRegenerateAtomsWithoutAtoms(t *testing.T) {
	l, frag := newTest(t, &scriptedModel{}, nil)
	_, err := l.RegenerateAtoms(context.Background(), frag.ID, "")
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}

func TestGenerateRulesRetriesUntilValid(t *testing.T) {
	ctx := context.Background()
	model := &scriptedModel{replies: []string{
		atomsReply,
		rulesReply("must_notify(C, A) :- controller(C), authority(A)"),
		rulesReply("must_notify(C, A) :- controller(C), authority(A)."),
	}}
	l, frag := newTest(t, model, embedded.New())

	_, err := l.GenerateAtoms(ctx, frag.ID)
	require.NoError(t, err)

	res, err := l.GenerateRules(ctx, frag.ID)
	require.NoError(t, err)
	assert.Equal(t, validate.Accepted, res.State)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, reasoning.StatusError, res.Attempts[0].Status)
	assert.Equal(t, "compliant(X1)", res.Attempts[1].Goal)

	// The retry continues the conversation with the engine's diagnostic.
	retry := model.calls[2]
	require.Len(t, retry, 3)
	assert.Equal(t, RoleAssistant, retry[1].Role)
	assert.Equal(t, RoleUser, retry[2].Role)
	assert.Contains(t, retry[2].Content, res.Attempts[0].Feedback)
	assert.Contains(t, model.calls[1][0].Content, "controller(C).")

	rules, err := l.Rules(ctx, frag.ID)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "must_notify(C, A) :- controller(C), authority(A).", rules[0].Definition)
	assert.True(t, rules[1].IsGoal)

	logged, err := l.Attempts(ctx, frag.ID)
	require.NoError(t, err)
	require.Len(t, logged, 2)
	assert.Equal(t, "error", logged[0].Status)
	assert.Equal(t, "success", logged[1].Status)
}

func TestGenerateRulesFailOnExhaustion(t *testing.T) {
	ctx := context.Background()
	broken := rulesReply("must_notify(C, A) :- controller(C)")
	model := &scriptedModel{replies: []string{atomsReply, broken, broken, broken}}
	r := reasoningtest.New(reasoningtest.Outcomes(reasoning.Error("syntax error: operator expected")))
	l, frag := newTest(t, model, r, func(o *Options) {
		o.MaxAttempts = 3
		o.Policy = validate.FailOnExhaustion
	})

	_, err := l.GenerateAtoms(ctx, frag.ID)
	require.NoError(t, err)

	res, err := l.GenerateRules(ctx, frag.ID)
	assert.ErrorIs(t, err, internalerr.ErrRetryCeilingReached)
	assert.Equal(t, validate.Exhausted, res.State)

	rules, _ := l.Rules(ctx, frag.ID)
	assert.Empty(t, rules)
	logged, _ := l.Attempts(ctx, frag.ID)
	assert.Len(t, logged, 3)
}

func TestGenerateRulesNeedsAtoms(t *testing.T) {
	l, frag := newTest(t, &scriptedModel{}, reasoningtest.New())
	_, err := l.GenerateRules(context.Background(), frag.ID)
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}

func seedProgram(t *testing.T, l *Lexatom, fragmentID int64) {
	t.Helper()
	ctx := context.Background()
	for _, a := range []store.Atom{
		{FragmentID: fragmentID, Predicate: "must_notify(C, A)"},
		{FragmentID: fragmentID, Predicate: "controller(C)", IsFact: true},
	} {
		_, err := l.store.CreateAtom(ctx, a)
		require.NoError(t, err)
	}
	for _, r := range []store.Rule{
		{FragmentID: fragmentID, Definition: "must_notify(C, A) :- controller(C), authority(A)."},
		{FragmentID: fragmentID, Definition: "compliant(C) :- must_notify(C, _).", IsGoal: true},
	} {
		_, err := l.store.CreateRule(ctx, r)
		require.NoError(t, err)
	}
}

func TestKnowledgeBase(t *testing.T) {
	l, frag := newTest(t, nil, nil)
	seedProgram(t, l, frag.ID)

	kb, err := l.KnowledgeBase(context.Background(), frag.ID)
	require.NoError(t, err)
	want := strings.Join([]string{
		"%:- dynamic must_notify/2. % must_notify(C, A); This is a derived predicate, not a fact.",
		":- dynamic controller/1. % controller(C)",
		"compliant(C) :- must_notify(C, _).",
		"must_notify(C, A) :- controller(C), authority(A).",
	}, "\n")
	assert.Equal(t, want, kb)
}

func TestRunExample(t *testing.T) {
	r := reasoningtest.New(reasoningtest.Outcomes(reasoning.Success(reasoning.Binding{Variable: "X1", Value: "acme"})))
	l, frag := newTest(t, nil, r)
	seedProgram(t, l, frag.ID)

	ex, err := l.RunExample(context.Background(), frag.ID, "controller(acme).\nauthority(dpa).")
	require.NoError(t, err)
	assert.Equal(t, reasoning.StatusSuccess, ex.Status)
	assert.Equal(t, "compliant(X1)", ex.Goal)
	assert.True(t, strings.HasSuffix(ex.KnowledgeBase, "\nauthority(dpa).\ncontroller(acme)."))
	assert.Equal(t, ex.KnowledgeBase, r.Calls()[0].KnowledgeBase)
}

func TestRunExampleWithoutGoal(t *testing.T) {
	l, frag := newTest(t, nil, reasoningtest.New())
	_, err := l.RunExample(context.Background(), frag.ID, "")
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}

func TestUpdateAtomPredicate(t *testing.T) {
	ctx := context.Background()
	r := reasoningtest.New(
		reasoningtest.Outcomes(reasoning.Error("syntax error")),
		reasoningtest.Outcomes(reasoning.Success()),
	)
	l, frag := newTest(t, nil, r)
	a, err := l.store.CreateAtom(ctx, store.Atom{FragmentID: frag.ID, Predicate: "controller(C)"})
	require.NoError(t, err)

	_, err = l.UpdateAtomPredicate(ctx, a.ID, "controller(C) :-")
	assert.ErrorIs(t, err, internalerr.ErrReasoningError)
	unchanged, _ := l.store.GetAtom(ctx, a.ID)
	assert.Equal(t, "controller(C)", unchanged.Predicate)

	updated, err := l.UpdateAtomPredicate(ctx, a.ID, "controller(C, Since)")
	require.NoError(t, err)
	assert.Equal(t, "controller(C, Since)", updated.Predicate)
	assert.Equal(t, "controller(_X1, _X2)", r.Calls()[1].Goal)

	_, err = l.UpdateAtomPredicate(ctx, 999, "x(Y)")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}

func TestOperationsNeedCollaborators(t *testing.T) {
	l, frag := newTest(t, nil, nil)
	_, err := l.GenerateAtoms(context.Background(), frag.ID)
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
	_, err = l.RunExample(context.Background(), frag.ID, "")
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestGenerateAllAtoms(t *testing.T) {
	ctx := context.Background()
	model := &scriptedModel{replies: []string{atomsReply, atomsReply}}
	l, first := newTest(t, model, nil)
	second, err := l.AddFragment(ctx, ingest.FromText("Art. 33(2)", breachText))
	require.NoError(t, err)

	got, err := l.GenerateAllAtoms(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Len(t, got[first.ID], 2)
	assert.Len(t, got[second.ID], 2)
	assert.Len(t, model.calls, 2)

	// Every fragment has atoms now, so a rerun is answered from the store.
	_, err = l.GenerateAllAtoms(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, model.calls, 2)
}

func TestGenerateAllAtomsReportsFailure(t *testing.T) {
	l, frag := newTest(t, &scriptedModel{}, nil)

	_, err := l.GenerateAllAtoms(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fragment "+strconv.FormatInt(frag.ID, 10))
}

func examplesReply(predicate string) string {
	return `<examples><example><description>Acme has a breach</description><facts>
<fact><predicate>` + predicate + `</predicate><arguments><argument><variable>C</variable><value>acme</value></argument></arguments></fact>
</facts></example></examples>`
}

func TestGenerateExamplesRetriesOnUnknownPredicate(t *testing.T) {
	ctx := context.Background()
	model := &scriptedModel{replies: []string{examplesReply("breach(C)"), examplesReply("controller(C)")}}
	r := reasoningtest.New(reasoningtest.Outcomes(reasoning.Success(reasoning.Binding{Variable: "X1", Value: "acme"})))
	l, frag := newTest(t, model, r)
	seedProgram(t, l, frag.ID)

	got, err := l.GenerateExamples(ctx, frag.ID)
	require.NoError(t, err)
	assert.Equal(t, []ExampleScenario{{Description: "Acme has a breach", Facts: []string{"controller(acme)."}}}, got)

	require.Len(t, model.calls, 2)
	assert.Contains(t, model.calls[0][0].Content, "compliant(C) :- must_notify(C, _).")
	retry := model.calls[1]
	require.Len(t, retry, 3)
	assert.Equal(t, RoleAssistant, retry[1].Role)
	assert.Contains(t, retry[2].Content, `invalid predicate "breach(C)"`)
	assert.Contains(t, retry[2].Content, "controller(C)")

	ex, err := l.RunExample(ctx, frag.ID, got[0].Program())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ex.KnowledgeBase, "\ncontroller(acme)."))
}

func TestGenerateExamplesGivesUp(t *testing.T) {
	model := &scriptedModel{replies: []string{examplesReply("breach(C)"), "no xml here"}}
	l, frag := newTest(t, model, nil, func(o *Options) { o.MaxAttempts = 2 })
	seedProgram(t, l, frag.ID)

	_, err := l.GenerateExamples(context.Background(), frag.ID)
	assert.ErrorIs(t, err, internalerr.ErrRetryCeilingReached)
	assert.Len(t, model.calls, 2)
}

func TestGenerateExamplesNeedsRules(t *testing.T) {
	ctx := context.Background()
	l, frag := newTest(t, &scriptedModel{}, nil)
	_, err := l.store.CreateAtom(ctx, store.Atom{FragmentID: frag.ID, Predicate: "controller(C)", IsFact: true})
	require.NoError(t, err)

	_, err = l.GenerateExamples(ctx, frag.ID)
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}
