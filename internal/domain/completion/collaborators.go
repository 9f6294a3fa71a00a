package completion

import (
	"context"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/internal/domain/route"
)

// Stage is the simulated world: playback, posture, release trigger, ground
// sensing and world reloads. Completion of each call arrives later as a Signal.
type Stage interface {
	PlayAnimation(ctx context.Context, procedureID string) error
	RequestPosture(ctx context.Context, procedureID string, posture model.Posture) error
	ArmRelease(ctx context.Context, procedureID string, altitude float64) error
	WatchGround(ctx context.Context, procedureID string) error
	ReloadWorld(ctx context.Context, procedureID string) error

	// Essential actions: idempotent, no visible playback.
	ForceEquip(ctx context.Context, item string) error
	SetPosture(ctx context.Context, posture model.Posture) error
	DeployCanopy(ctx context.Context) error
}

// Presenter is the display sink.
type Presenter interface {
	Show(ctx context.Context, p model.Procedure) error
	Hide(ctx context.Context, procedureID string) error
	Prompt(ctx context.Context, procedureID, message string) error
}

// Reloader starts a world reload on behalf of a procedure.
type Reloader interface {
	BeginReload(ctx context.Context, procedureID string)
}

// Router is the part of the route synchronizer the dispatcher waits on.
type Router interface {
	MilestoneFor(p model.Procedure) (int, bool)
	IsReloadGate(p model.Procedure) bool
	AwaitMilestone(target int, fn func(reached int)) *route.Subscription
}

// PostureFor returns the posture a SitDown/Stand procedure asks for.
func PostureFor(c model.ConditionKind) (model.Posture, bool) {
	switch c {
	case model.ConditionSitDown:
		return model.PostureSeated, true
	case model.ConditionStand:
		return model.PostureStanding, true
	}
	return "", false
}
