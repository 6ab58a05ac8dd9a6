// Package masking finds known sensitive values in text and replaces them
// with a fixed token.
//
// Build indexes a set of values into an Automaton (Aho-Corasick), which
// finds every occurrence in a single pass regardless of how many values
// are indexed. A Redactor applies an automaton to a stream of fragments,
// holding back a short tail whenever a value might continue in the next
// fragment:
//
//	a, err := masking.Build([]string{"sup3rSecret!"})
//	if err != nil {
//	    return err
//	}
//	r := masking.NewRedactor()
//	r.Apply(a, "login failed for sup3r", emit)
//	r.Apply(a, "Secret!\n", emit)
//	r.Flush(a)
//	// emit received "login failed for " and "<redacted>\n"
package masking
