package vm

import "context"

// StopFunc is polled at loop back-edges. Returning Undefined lets execution
// continue; any other value is thrown at the polling point. A returned
// object or heap value must be a new reference.
type StopFunc func(vm *VM) Value

// StopOnContext returns a StopFunc that aborts execution with an Error once
// ctx is done. The error message is the context's error.
func StopOnContext(ctx context.Context) StopFunc {
	return func(vm *VM) Value {
		select {
		case <-ctx.Done():
			vm.log.Infof("execution stopped: %s", ctx.Err())
			return vm.NewError(CommonError, "execution stopped: "+ctx.Err().Error())
		default:
			return Undefined
		}
	}
}

// SetStop replaces the stop callback. A nil callback disables polling.
func (vm *VM) SetStop(stop StopFunc) {
	vm.config.Stop = stop
	vm.stopCounter = vm.config.StopFrequency
}
