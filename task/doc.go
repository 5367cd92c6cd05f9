// Package task runs measurement procedures against instruments.
//
// A Task wraps a Procedure and runs it on its own goroutine in four steps: a framework setup
// that validates the injected instruments and surfaces, the procedure's Setup, Test and
// Cleanup phases, and a framework cleanup that classifies the run and finalizes its Result.
// Errors and panics from the procedure are logged and make the run Failed; they never
// escape the task.
//
// The terminal state is decided in this order: Aborted when Stop was called, Failed when a
// phase failed or the procedure never called SetTaskPassed(true), Passed otherwise.
//
// Everything the task logs while running is mirrored into Result.Log, and error records
// also into Result.Errors. The outside world is reached only through Callbacks:
//
//	tk, err := task.New("ramp", proc,
//		task.WithInstruments(map[string]*instrument.Instrument{"psu": psu}),
//		task.WithCallbacks(task.NewLogCallbacks(nil)),
//		task.WithResultSink(results),
//	)
//	if err := tk.Start(); err != nil {
//		return err
//	}
//	_ = tk.Wait(ctx)
//	_ = tk.Result().WriteYAML(os.Stdout)
package task
