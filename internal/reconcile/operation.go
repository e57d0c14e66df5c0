package reconcile

// OpKind names a store call made during a reconciliation
type OpKind string

const (
	OpGetRef       OpKind = "get_ref"
	OpGetCommit    OpKind = "get_commit"
	OpGetTree      OpKind = "get_tree"
	OpGetContent   OpKind = "get_content"
	OpCreateBlob   OpKind = "create_blob"
	OpCreateTree   OpKind = "create_tree"
	OpCreateCommit OpKind = "create_commit"
	OpUpdateRef    OpKind = "update_ref"
)

// IsWrite reports whether the operation mutates the target store
func (k OpKind) IsWrite() bool {
	switch k {
	case OpCreateBlob, OpCreateTree, OpCreateCommit, OpUpdateRef:
		return true
	}
	return false
}

// Operation is one completed (or, in a dry run, planned) store call
type Operation struct {
	Kind   OpKind `json:"kind"`
	Target string `json:"target"`
	Result string `json:"result,omitempty"`
}

func (r *Result) record(kind OpKind, target, result string) {
	r.Operations = append(r.Operations, Operation{Kind: kind, Target: target, Result: result})
}

// Writes returns the number of write operations performed
func (r *Result) Writes() int {
	n := 0
	for _, op := range r.Operations {
		if op.Kind.IsWrite() && !r.DryRun {
			n++
		}
	}
	return n
}
