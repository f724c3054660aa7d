package dispatch

import (
	"context"
	"testing"

	"go.viam.com/test"
)

func TestHostDispatcherParallelForVisitsEveryIndex(t *testing.T) {
	d := &HostDispatcher{MaxWorkers: 4}
	counter := d.NewCounter()

	err := d.ParallelFor(context.Background(), 100, func(ctx context.Context, i int) error {
		counter.Add(1)
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, counter.Load(), test.ShouldEqual, int32(100))
}

func TestAccumulatorResetAccumulateFinalize(t *testing.T) {
	d := &HostDispatcher{}
	acc := d.NewAccumulator()
	acc.Reset()

	err := d.ParallelFor(context.Background(), 10, func(ctx context.Context, i int) error {
		acc.Add(float64(i))
		return nil
	})
	test.That(t, err, test.ShouldBeNil)

	mean := acc.Finalize(10)
	test.That(t, mean, test.ShouldEqual, 4.5)
}

func TestSerialDispatcherIsOrdered(t *testing.T) {
	d := SerialDispatcher{}
	var order []int
	err := d.ParallelFor(context.Background(), 5, func(ctx context.Context, i int) error {
		order = append(order, i)
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, order, test.ShouldResemble, []int{0, 1, 2, 3, 4})
}

func TestSlotRandDeterministic(t *testing.T) {
	r1 := SlotRand(42, 7)
	r2 := SlotRand(42, 7)
	test.That(t, r1.Int63(), test.ShouldEqual, r2.Int63())

	r3 := SlotRand(42, 7)
	r4 := SlotRand(42, 8)
	test.That(t, r3.Int63(), test.ShouldNotEqual, r4.Int63())
}
