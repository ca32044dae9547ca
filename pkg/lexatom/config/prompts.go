package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts is the bundle of text/template prompts sent to the model.
type Prompts struct {
	AtomExtraction   string `yaml:"atom_extraction"`
	AtomRegeneration string `yaml:"atom_regeneration"`
	RuleExtraction   string `yaml:"rule_extraction"`
	RuleRegeneration string `yaml:"rule_regeneration"`
	RuleRetry        string `yaml:"rule_retry"`

	ExampleGeneration string `yaml:"example_generation"`
	ExampleRetry      string `yaml:"example_retry"`
}

// LoadPrompts loads a prompt bundle from a YAML file. Templates missing from
// the file keep their defaults.
func LoadPrompts(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}

	d := DefaultPrompts()
	fill(&p.AtomExtraction, d.AtomExtraction)
	fill(&p.AtomRegeneration, d.AtomRegeneration)
	fill(&p.RuleExtraction, d.RuleExtraction)
	fill(&p.RuleRegeneration, d.RuleRegeneration)
	fill(&p.RuleRetry, d.RuleRetry)
	fill(&p.ExampleGeneration, d.ExampleGeneration)
	fill(&p.ExampleRetry, d.ExampleRetry)
	return &p, nil
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// DefaultPrompts returns the built-in prompt bundle.
func DefaultPrompts() *Prompts {
	return &Prompts{
		AtomExtraction:   defaultAtomExtraction,
		AtomRegeneration: defaultAtomRegeneration,
		RuleExtraction:   defaultRuleExtraction,
		RuleRegeneration: defaultRuleRegeneration,
		RuleRetry:        defaultRuleRetry,

		ExampleGeneration: defaultExampleGeneration,
		ExampleRetry:      defaultExampleRetry,
	}
}

const atomFormat = `Answer with a single XML document of this shape and nothing else:
<result>
  <annotated>the fragment text with every atom occurrence wrapped as <atom id="N">text</atom></annotated>
  <atoms>
    <atom id="N">
      <predicate>name(Arg1, Arg2)</predicate>
      <description>what the predicate states</description>
      <is_fact>true if it is asserted directly, false if it must be derived</is_fact>
    </atom>
  </atoms>
</result>`

const ruleFormat = `Answer with a single XML document of this shape and nothing else:
<result>
  <rules>
    <rule><definition>head(X) :- body(X).</definition><description>...</description></rule>
  </rules>
  <goals>
    <rule><definition>goal(X) :- head(X).</definition><description>...</description></rule>
  </goals>
</result>`

const defaultAtomExtraction = `Identify the atomic propositions in the regulation fragment below and express each as a Prolog predicate.

Fragment:
{{.Content}}

` + atomFormat

const defaultAtomRegeneration = `Revise the atoms previously extracted from the regulation fragment below.

Fragment:
{{.Content}}

Previous result:
{{.Previous}}

Reviewer feedback:
{{.Feedback}}

` + atomFormat

const defaultRuleExtraction = `Formalize the regulation fragment below as Prolog rules over the given atoms.
State at least one goal that checks compliance.

Fragment:
{{.Content}}

{{.Atoms}}

` + ruleFormat

const defaultRuleRegeneration = `Revise the Prolog rules previously written for the regulation fragment below.

Fragment:
{{.Content}}

{{.Atoms}}

Previous result:
{{.Previous}}

Reviewer feedback:
{{.Feedback}}

` + ruleFormat

const defaultRuleRetry = `{{.Instruction}}

Your previous answer:
{{.Previous}}

The reasoning engine reported:
{{.Diagnostic}}

` + ruleFormat

const exampleFormat = `Answer with a single XML document of this shape and nothing else:
<examples>
  <example>
    <description>the situation the example describes</description>
    <facts>
      <fact>
        <predicate>one of the fact predicates, copied exactly</predicate>
        <arguments>
          <argument><variable>C</variable><value>acme</value></argument>
        </arguments>
      </fact>
    </facts>
  </example>
</examples>`

const defaultExampleGeneration = `Write concrete example scenarios for the Prolog program below. Each example
is a set of facts that instantiate the program's atoms. Cover both compliant and
non-compliant situations.

Program:
{{.KnowledgeBase}}

{{.Atoms}}

` + exampleFormat

const defaultExampleRetry = `Your examples could not be used:
{{.Diagnostic}}

Use only the predicates listed earlier, copied exactly.

` + exampleFormat
