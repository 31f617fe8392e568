package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_TrivialQueryIsSimple(t *testing.T) {
	// Given a three-word question with a single question mark
	result := Classify("What is Clearpath?")

	assert.Equal(t, Simple, result)
}

func TestClassify_ComplaintIsComplex(t *testing.T) {
	result := Classify("The billing system is not working and I want a refund immediately. This is unacceptable.")

	assert.Equal(t, Complex, result)
}

func TestClassify_ComparisonIsComplex(t *testing.T) {
	result := Classify("Pro vs Enterprise plan comparison")

	assert.Equal(t, Complex, result)
}

func TestClassify_ThreeQuestionsIsComplex(t *testing.T) {
	result := Classify("What is the difference between the Pro plan and the Enterprise plan? Which one should I choose? Are there any hidden fees?")

	assert.Equal(t, Complex, result)
}

func TestClassify_ShortComplexityKeywordEscapesFastPath(t *testing.T) {
	// Given a short query that still carries a complexity keyword
	f := ExtractFeatures("migration help please")
	assert.True(t, f.HasComplexityKeywords)

	// Then the three-word fast path does not claim it
	// (it falls through and scores 2 on keywords alone)
	assert.Equal(t, Complex, Classify("migration help please"))
}

func TestClassify_AmbiguityPlusKeywordsScoresComplex(t *testing.T) {
	result := Classify("Can you explain the best practices for security configuration in our deployment")

	assert.Equal(t, Complex, result)
}

func TestClassify_PlainQuestionIsSimple(t *testing.T) {
	result := Classify("How do I update my billing address in the dashboard")

	assert.Equal(t, Simple, result)
}

func TestClassify_Totality(t *testing.T) {
	// Every input maps to exactly one of the two outcomes
	inputs := []string{
		"",
		"?",
		"help",
		"a b c d e f g h i j k l m n o p q r s t u v w x y z aa bb cc dd ee ff gg hh ii jj kk ll mm nn oo pp",
		"!!! ??? ...",
		"ça marche pas désolé",
	}
	for _, in := range inputs {
		c := Classify(in)
		assert.Contains(t, []Classification{Simple, Complex}, c, "input %q", in)
	}
}

func TestExtractFeatures_Counts(t *testing.T) {
	f := ExtractFeatures("First sentence. Second one? Third!")

	assert.Equal(t, 5, f.WordCount)
	assert.Equal(t, 1, f.QuestionCount)
	assert.Equal(t, 3, f.SentenceCount)
}

func TestExtractFeatures_WholeWordKeywordMatching(t *testing.T) {
	// "customs" must not match the keyword "custom"
	assert.False(t, ExtractFeatures("international customs forms").HasComplexityKeywords)
	assert.True(t, ExtractFeatures("custom domain setup").HasComplexityKeywords)
}

func TestExtractFeatures_MultiWordKeyword(t *testing.T) {
	assert.True(t, ExtractFeatures("please walk me through onboarding").HasComplexityKeywords)
}

func TestExtractFeatures_ComparisonPatterns(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"A vs B", true},
		{"A vs. B", true},
		{"A versus B", true},
		{"A compared to B", true},
		{"difference between A and B", true},
		{"is A better than B", true},
		{"should I use A or B or C", true},
		{"just one or the other", false},
		{"plain question about plans", false},
	}
	for _, tt := range tests {
		f := ExtractFeatures(tt.query)
		assert.Equal(t, tt.want, f.HasComparisonPattern, "query %q", tt.query)
	}
}

func TestExtractFeatures_ComplaintSubstrings(t *testing.T) {
	assert.True(t, ExtractFeatures("I hit an ERROR during checkout").HasComplaintMarkers)
	assert.True(t, ExtractFeatures("let me speak to manager").HasComplaintMarkers)
	assert.False(t, ExtractFeatures("all good, thanks").HasComplaintMarkers)
}

func TestClassify_FrozenTableSizes(t *testing.T) {
	// The routing tables are part of the engine contract
	assert.Len(t, complexityKeywords, 40)
	assert.Len(t, ambiguityMarkers, 17)
	assert.Len(t, complaintMarkers, 19)
	assert.Len(t, comparisonPatterns, 7)
}
