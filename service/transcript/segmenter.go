// Package transcript extracts delimited command utterances from a device
// transcript. Segmentation is pure string work: callers lower-case the
// transcript first, then run Segment once per command vocabulary.
package transcript

import (
	"regexp"
	"strings"
)

// Trigger vocabularies for the two command families. Each includes the
// period-suffixed variant because the transcription device frequently
// attaches sentence punctuation to the trigger itself.
var (
	TransferStartPhrases = []string{"start transaction", "start transaction."}
	TransferEndPhrases   = []string{"end transaction", "end transaction."}

	SwapStartPhrases = []string{"start swap", "start swap."}
	SwapEndPhrases   = []string{"end swap", "end swap."}
)

// capitalizeRe matches the first word character of the string and the first
// word character after sentence-ending punctuation.
var capitalizeRe = regexp.MustCompile(`(^\s*\w|[.!?]\s*\w)`)

// Segment scans text left-to-right for non-overlapping spans of the form
// start-phrase, shortest body, end-phrase, and returns the normalized bodies
// in order of appearance. A start phrase with no following end phrase yields
// nothing: unterminated commands are dropped, not errors. The caller is
// expected to pass lower-cased text; phrase matching is case-sensitive.
func Segment(text string, startPhrases, endPhrases []string) []string {
	if text == "" || len(startPhrases) == 0 || len(endPhrases) == 0 {
		return nil
	}

	pattern := "(" + alternation(startPhrases) + ")(.*?)(" + alternation(endPhrases) + ")"
	re := regexp.MustCompile(pattern)

	var messages []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		messages = append(messages, Normalize(m[2]))
	}
	return messages
}

// Normalize trims an extracted utterance body, strips a single leading period
// left over from a punctuated trigger phrase, and upper-cases the first letter
// of the string and the first letter after each of ".", "!" and "?".
// Normalize is idempotent.
func Normalize(message string) string {
	message = strings.TrimSpace(message)
	if strings.HasPrefix(message, ".") {
		message = strings.TrimSpace(message[1:])
	}
	return capitalizeRe.ReplaceAllStringFunc(message, strings.ToUpper)
}

// alternation joins literal phrases into a regexp alternation, preserving
// order so that the unpunctuated variant wins and Normalize handles the
// leaked period.
func alternation(phrases []string) string {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(quoted, "|")
}
