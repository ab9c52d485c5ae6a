package worker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/worker"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

func TestPool_FreeAdjacentToFiltersByKindAndState(t *testing.T) {
	p := worker.New()
	p.Register("robot-1", worker.KindRobot, []int{1, 2})
	p.Register("robot-2", worker.KindRobot, []int{2})
	p.Register("drone-1", worker.KindDrone, []int{2})
	p.SetState("robot-2", fabric.WorkerBusy)

	free := p.FreeAdjacentTo(2, worker.KindRobot)
	require.Len(t, free, 1)
	assert.Equal(t, "robot-1", free[0].ID)
}

func TestPool_SetStateTransitionsWorker(t *testing.T) {
	p := worker.New()
	p.Register("robot-1", worker.KindRobot, []int{1})

	p.SetState("robot-1", fabric.WorkerPending)
	w, ok := p.Get("robot-1")
	require.True(t, ok)
	assert.Equal(t, fabric.WorkerPending, w.State)
}

func TestPool_HasFreeAdjacentAnywhere(t *testing.T) {
	p := worker.New()
	assert.False(t, p.HasFreeAdjacentAnywhere(worker.KindDrone))

	p.Register("drone-1", worker.KindDrone, []int{3})
	assert.True(t, p.HasFreeAdjacentAnywhere(worker.KindDrone))

	p.SetState("drone-1", fabric.WorkerBusy)
	assert.False(t, p.HasFreeAdjacentAnywhere(worker.KindDrone))
}

func TestPool_ResetKindFreesOnlyMatchingKind(t *testing.T) {
	p := worker.New()
	p.Register("robot-1", worker.KindRobot, []int{1})
	p.Register("drone-1", worker.KindDrone, []int{1})
	p.SetState("robot-1", fabric.WorkerBusy)
	p.SetState("drone-1", fabric.WorkerBusy)

	reset := p.ResetKind(worker.KindRobot)
	assert.Equal(t, 1, reset)

	robot, _ := p.Get("robot-1")
	assert.Equal(t, fabric.WorkerFree, robot.State)
	drone, _ := p.Get("drone-1")
	assert.Equal(t, fabric.WorkerBusy, drone.State)
}
