package actions

import (
	"context"
	"fmt"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/workers"
	"github.com/livingstone45/stayspot-sub007/workflow"
)

// WorkflowTaskAssignment routes a new task through skill matching and
// workload balancing to a professional, then notifies and schedules
// follow-up.
const WorkflowTaskAssignment = "task_assignment"

func taskAssignmentWorkflow() workflow.Definition {
	return workflow.Definition{
		ID:          WorkflowTaskAssignment,
		Name:        "Task Assignment Workflow",
		Description: "Automated task assignment and tracking",
		Active:      true,
		Steps: []workflow.Step{
			{
				ID:        "skill_matching",
				Name:      "Skill Matching",
				Action:    "matchTaskToSkills",
				OnSuccess: "availability_check",
				OnFailure: "skill_matching_failed",
			},
			{
				ID:        "availability_check",
				Name:      "Availability Check",
				Action:    "checkProfessionalAvailability",
				OnSuccess: "workload_balancing",
				OnFailure: "unavailable",
			},
			{
				ID:        "workload_balancing",
				Name:      "Workload Balancing",
				Action:    "balanceWorkload",
				OnSuccess: "assignment",
				OnFailure: "workload_balancing_failed",
			},
			{
				ID:        "assignment",
				Name:      "Task Assignment",
				Action:    "assignTaskToProfessional",
				OnSuccess: "notification",
				OnFailure: "assignment_failed",
			},
			{
				ID:        "notification",
				Name:      "Assignment Notification",
				Action:    "sendAssignmentNotification",
				OnSuccess: "follow_up",
				OnFailure: "notification_failed",
			},
			{
				ID:        "follow_up",
				Name:      "Follow-up Scheduling",
				Action:    "scheduleFollowUp",
				OnSuccess: workflow.TerminalStep,
				OnFailure: "follow_up_failed",
			},
		},
	}
}

func registerTaskActions(reg *workflow.ActionRegistry, deps Deps) error {
	handlers := map[string]workflow.ActionFunc{
		"matchTaskToSkills":             matchTaskToSkills,
		"checkProfessionalAvailability": checkProfessionalAvailability,
		"balanceWorkload":               balanceWorkload,
		"assignTaskToProfessional":      assignTaskToProfessional,
		"sendAssignmentNotification":    sendAssignmentNotification(deps),
		"scheduleFollowUp":              scheduleFollowUp,
	}
	for name, fn := range handlers {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// A professional at or above this many open tasks takes no new work.
const maxProfessionalWorkload = 10

// matchTaskToSkills filters the available professionals to those holding
// every required skill.
func matchTaskToSkills(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	professionals := payloadProfessionalList(data)
	if len(professionals) == 0 {
		return workflow.Failure("no professionals available"), nil
	}
	required := payloadSkillList(data["requiredSkills"])

	matched := make([]any, 0, len(professionals))
	for _, pro := range professionals {
		if hasAllSkills(payloadSkillList(pro["skills"]), required) {
			matched = append(matched, map[string]any(pro))
		}
	}
	if len(matched) == 0 {
		return workflow.Failure("no professionals match the required skills"), nil
	}

	return workflow.Success("task matched to professionals").
		WithField("matchedProfessionals", matched).
		WithField("matchCount", len(matched)), nil
}

func payloadProfessionalList(data automation.Payload) []automation.Payload {
	raw, ok := data["availableProfessionals"].([]any)
	if !ok {
		return nil
	}
	out := make([]automation.Payload, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, automation.Payload(m))
		}
	}
	return out
}

func payloadSkillList(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func hasAllSkills(skills, required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range skills {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// checkProfessionalAvailability verifies the best match still has capacity
// for another task.
func checkProfessionalAvailability(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	professionalID := firstMatchedProfessional(data)
	if professionalID == "" {
		return workflow.Failure("no matched professional to check"), nil
	}
	workload := professionalWorkload(data, professionalID)
	if workload >= maxProfessionalWorkload {
		return workflow.Failure(fmt.Sprintf("professional %s is at capacity (%d tasks)", professionalID, workload)), nil
	}

	return workflow.Success("professional available").
		WithField("professionalId", professionalID).
		WithField("currentWorkload", workload).
		WithField("maxWorkload", maxProfessionalWorkload), nil
}

func firstMatchedProfessional(data automation.Payload) string {
	if id, ok := data.String("professionalId"); ok && id != "" {
		return id
	}
	raw, ok := data["matchedProfessionals"].([]any)
	if !ok || len(raw) == 0 {
		return ""
	}
	m, ok := raw[0].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := automation.Payload(m).String("id")
	return id
}

// professionalWorkload reads the caller-supplied workload table, falling
// back to the flat currentWorkload figure.
func professionalWorkload(data automation.Payload, professionalID string) int {
	if table, ok := data["workloads"].(map[string]any); ok {
		if n, ok := automation.Payload(table).Int(professionalID); ok {
			return n
		}
	}
	n, _ := data.Int("currentWorkload")
	return n
}

// balanceWorkload picks the least-loaded matched professional as the
// assignee.
func balanceWorkload(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	raw, _ := data["matchedProfessionals"].([]any)
	assignee := firstMatchedProfessional(data)
	if assignee == "" {
		return workflow.Failure("no candidates to balance"), nil
	}

	best := professionalWorkload(data, assignee)
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := automation.Payload(m).String("id")
		if id == "" {
			continue
		}
		if load := professionalWorkload(data, id); load < best {
			assignee, best = id, load
		}
	}

	return workflow.Success("workload balanced").
		WithField("assigneeId", assignee).
		WithField("assigneeWorkload", best), nil
}

func assignTaskToProfessional(_ context.Context, data automation.Payload, rc automation.RequestContext) (*workflow.Result, error) {
	taskID, _ := data.String("taskId")
	if taskID == "" {
		return workflow.Failure("assignment requires a taskId"), nil
	}
	assigneeID, _ := data.String("assigneeId")
	if assigneeID == "" {
		assigneeID = firstMatchedProfessional(data)
	}
	if assigneeID == "" {
		return workflow.Failure("no professional to assign"), nil
	}

	return workflow.Success("task assigned").
		WithField("assignmentId", "assign_"+taskID).
		WithField("assigneeId", assigneeID).
		WithField("assignedBy", rc.ActorID).
		WithField("assignedAt", time.Now().UTC().Format(time.RFC3339)), nil
}

func sendAssignmentNotification(deps Deps) workflow.ActionFunc {
	return func(ctx context.Context, data automation.Payload, rc automation.RequestContext) (*workflow.Result, error) {
		assigneeID, _ := data.String("assigneeId")
		taskID, _ := data.String("taskId")
		if deps.Notifier == nil || assigneeID == "" {
			return workflow.Success("notification skipped"), nil
		}

		_, err := deps.Notifier.AddInAppJob(ctx, "task_"+taskID, assigneeID, workers.InAppMessage{
			Type:    "task_assigned",
			Title:   "New task assigned",
			Message: fmt.Sprintf("Task %s has been assigned to you.", taskID),
			Data:    data.Clone(),
		}, rc)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("notification enqueue failed: %v", err)), nil
		}
		return workflow.Success("assignee notified"), nil
	}
}

// scheduleFollowUp sets a check-in the day before the due date, or one day
// out when the task has none.
func scheduleFollowUp(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	followUp := time.Now().UTC().Add(24 * time.Hour)
	if v, ok := data.String("dueDate"); ok && v != "" {
		if due, err := time.Parse(time.RFC3339, v); err == nil {
			followUp = due.Add(-24 * time.Hour)
		}
	}

	return workflow.Success("follow-up scheduled").
		WithField("followUpAt", followUp.Format(time.RFC3339)), nil
}
