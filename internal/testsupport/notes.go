package testsupport

import "sync"

// Notes records notifications in arrival order.
type Notes struct {
	mu        sync.Mutex
	successes []string
	errors    []string
	clears    int
	visible   [2]string
}

func (n *Notes) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
	n.visible[0] = message
}

func (n *Notes) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
	n.visible[1] = message
}

// Clear hides the visible messages; the recorded history is kept.
func (n *Notes) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clears++
	n.visible = [2]string{}
}

// Clears returns how many times Clear was called.
func (n *Notes) Clears() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clears
}

// Visible returns the success and error message currently shown.
func (n *Notes) Visible() (success, err string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visible[0], n.visible[1]
}

// Successes returns the success messages seen so far.
func (n *Notes) Successes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.successes...)
}

// Errors returns the error messages seen so far.
func (n *Notes) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}
