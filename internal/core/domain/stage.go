package domain

import "fmt"

// ResolveStage maps a finalized classification decision to the document's
// next pipeline stage. Documents confirmed irrelevant to accounts-payable
// processing (NC) are closed immediately; every other type proceeds to
// downstream data extraction.
//
// Calling it with UNCLASSIFIED or NOT_SELECTED is a programming error:
// classification must be finalized before stage resolution.
func ResolveStage(decision Classification) (Stage, error) {
	if !decision.IsDecision() {
		return "", WrapError(ErrInvalidArgument, "resolve stage",
			fmt.Errorf("classification %q is not a finalized decision", decision))
	}
	if decision == ClassNotAP {
		return StageCompleted, nil
	}
	return StageDataExtract, nil
}
