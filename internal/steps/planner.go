package steps

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// PlanKind is the action chosen for a deployment.
type PlanKind int

const (
	// PlanSyncTracked updates the Git-tracked files in place.
	PlanSyncTracked PlanKind = iota
	// PlanRecreateAll starts from an empty remote folder.
	PlanRecreateAll
	// PlanCancel stops the attempt.
	PlanCancel
)

func (k PlanKind) String() string {
	switch k {
	case PlanSyncTracked:
		return "sync"
	case PlanRecreateAll:
		return "recreate"
	case PlanCancel:
		return "cancel"
	default:
		return fmt.Sprintf("PlanKind(%d)", int(k))
	}
}

// SyncPlan is decided once per attempt, before any file is transferred.
type SyncPlan struct {
	Kind PlanKind
	// DeleteExisting is true only for a recreate of a present project.
	DeleteExisting bool
	// ProvisionEnv requests a new remote .env.
	ProvisionEnv bool
}

// Choices offered for a project that already exists remotely, in menu order.
const (
	ChoiceSync = iota
	ChoiceRecreate
	ChoiceCancel
)

var planOptions = []string{
	ChoiceSync:     "Update files tracked by Git and redeploy",
	ChoiceRecreate: "Delete any volumes and the folder, create a new folder, and redeploy",
	ChoiceCancel:   "Cancel redeployment",
}

// DecidePlan turns the remote state and the operator's answers into a plan.
// For an absent project the answers are ignored. A recreate needs the
// project name typed back exactly.
func DecidePlan(state RemoteProjectState, choice int, confirmation, projectName string) (SyncPlan, error) {
	if !state.Present {
		return SyncPlan{Kind: PlanRecreateAll, DeleteExisting: false, ProvisionEnv: true}, nil
	}

	switch choice {
	case ChoiceSync:
		return SyncPlan{Kind: PlanSyncTracked, ProvisionEnv: !state.HasEnvFile}, nil
	case ChoiceRecreate:
		if strings.TrimSpace(confirmation) != projectName {
			return SyncPlan{Kind: PlanCancel}, fmt.Errorf("%w: expected %q to be typed", ErrDestructiveAction, projectName)
		}
		return SyncPlan{Kind: PlanRecreateAll, DeleteExisting: true, ProvisionEnv: true}, nil
	case ChoiceCancel:
		return SyncPlan{Kind: PlanCancel}, nil
	default:
		return SyncPlan{Kind: PlanCancel}, fmt.Errorf("invalid choice %d", choice)
	}
}

// SyncPlanner asks the operator how to treat an existing remote project.
type SyncPlanner struct {
	ui     Prompter
	logger *zap.Logger
}

// NewSyncPlanner creates a new SyncPlanner
func NewSyncPlanner(ui Prompter, logger *zap.Logger) *SyncPlanner {
	return &SyncPlanner{ui: ui, logger: logger}
}

// Plan prompts only when the project is present remotely.
func (p *SyncPlanner) Plan(dc *DeploymentContext, state RemoteProjectState) (SyncPlan, error) {
	choice := ChoiceSync
	confirmation := ""

	if state.Present {
		var err error
		choice, err = p.ui.PromptSelect("What do you want to do?", planOptions, ChoiceSync)
		if err != nil {
			return SyncPlan{Kind: PlanCancel}, err
		}

		if choice == ChoiceRecreate {
			p.ui.Warningf("This deletes the %s folder on %s and all of its Docker volumes", dc.ProjectName, dc.Host.Alias)
			confirmation, err = p.ui.PromptInput(fmt.Sprintf("Type %q to confirm", dc.ProjectName), "", nil)
			if err != nil {
				return SyncPlan{Kind: PlanCancel}, err
			}
		}
	}

	plan, err := DecidePlan(state, choice, confirmation, dc.ProjectName)
	p.logger.Info("planned deployment",
		zap.String("project", dc.ProjectName),
		zap.Stringer("plan", plan.Kind),
		zap.Bool("delete_existing", plan.DeleteExisting),
		zap.Bool("provision_env", plan.ProvisionEnv))
	return plan, err
}
