// Package chain runs an ordered list of steps over a single mutable context.
//
// A pipeline is a Processor with steps and up to four hooks. Run executes the
// pre-run hook, then every step in registered order and finally the post-run hook.
// Each step receives the context returned by the previous one.
//
// A context signals it wants to stop by reporting Aborted, the processor then skips
// the remaining steps and carries on as if they succeeded. Aborting is not a failure.
//
// Steps that implement Compensator get their compensation action recorded once their
// Handle succeeded. When a later step or the post-run hook fails the recorded actions
// run in the order they were recorded, against the context as it stood when the failure
// happened. After that the on-exception hook decides whether the error reaches the
// caller. The finally hook runs at the end of every run. A step, hook or compensation
// action that panics fails like any other with a PanicError.
//
//	resCtx, err := chain.New[*Order](chain.LogWith(log), chain.PublishTo(bus)).
//		Before(loadCustomer).
//		After(notify).
//		Finally(releaseLock).
//		OnException(chain.Intercept[*Order](rethrow.OnCancel)).
//		AddSteps(
//			reserveStock,
//			chain.Retry[*Order](backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 3), chargeCard),
//			chain.Func[*Order]("ship", ship, nil),
//		).
//		Run(ctx, order)
//
// The processor keeps no state for a run once it returns, the compensation ledger
// lives and dies with a single invocation of Run.
package chain
