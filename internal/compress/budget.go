package compress

// ThreadsPerTask divides available logical cores across tasks that each
// run their own compression workers. One core stays reserved for the
// caller's goroutine. Every task gets at least one thread, even when that
// oversubscribes the machine.
func ThreadsPerTask(available, tasks uint) uint {
	if available <= 1 || available <= tasks || tasks == 0 {
		return 1
	}
	return max((available-1)/tasks, 1)
}
