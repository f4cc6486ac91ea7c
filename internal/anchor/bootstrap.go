package anchor

import (
	"context"
	"encoding/json"
	"fmt"

	"fhiraudit/internal/fhir"
)

// Defaults used when bootstrap config leaves a field empty.
const (
	DefaultDeviceName          = "Software: FH Hagenberg AIST: 'Process mining on FHIR' Server"
	DefaultWorkflowID          = "rad-wf"
	DefaultWorkflowDescription = "PlanDefinition of the radiology practice workflow"
)

// BootstrapStore is the resource access bootstrap needs.
type BootstrapStore interface {
	SearchAll(ctx context.Context, rt fhir.ResourceType) ([]*fhir.Resource, error)
	Create(ctx context.Context, res *fhir.Resource) (*fhir.Resource, error)
	Update(ctx context.Context, res *fhir.Resource) (*fhir.Resource, bool, error)
}

type BootstrapConfig struct {
	DeviceName          string
	WorkflowID          string
	WorkflowDescription string
}

func (c BootstrapConfig) withDefaults() BootstrapConfig {
	if c.DeviceName == "" {
		c.DeviceName = DefaultDeviceName
	}
	if c.WorkflowID == "" {
		c.WorkflowID = DefaultWorkflowID
	}
	if c.WorkflowDescription == "" {
		c.WorkflowDescription = DefaultWorkflowDescription
	}
	return c
}

// Anchors are the references bootstrap guarantees to exist.
type Anchors struct {
	Device   fhir.Reference
	Workflow fhir.Reference
}

type deviceName struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type deviceJSON struct {
	ResourceType fhir.ResourceType `json:"resourceType"`
	DeviceName   []deviceName      `json:"deviceName"`
}

type planDefinitionJSON struct {
	ResourceType fhir.ResourceType `json:"resourceType"`
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Description  string            `json:"description"`
}

// Bootstrap creates the device anchor when none exists and upserts the
// workflow definition under its fixed id. It is safe to run on every start.
func Bootstrap(ctx context.Context, store BootstrapStore, cfg BootstrapConfig) (Anchors, error) {
	cfg = cfg.withDefaults()
	var out Anchors

	devices, err := store.SearchAll(ctx, fhir.TypeDevice)
	if err != nil {
		return Anchors{}, fmt.Errorf("search devices: %w", err)
	}
	if len(devices) > 0 {
		out.Device = devices[0].Reference()
	} else {
		body, err := json.Marshal(deviceJSON{
			ResourceType: fhir.TypeDevice,
			DeviceName:   []deviceName{{Name: cfg.DeviceName, Type: "user-friendly-name"}},
		})
		if err != nil {
			return Anchors{}, err
		}
		created, err := store.Create(ctx, &fhir.Resource{Type: fhir.TypeDevice, Body: body})
		if err != nil {
			return Anchors{}, fmt.Errorf("create device anchor: %w", err)
		}
		out.Device = created.Reference()
	}

	body, err := json.Marshal(planDefinitionJSON{
		ResourceType: fhir.TypePlanDefinition,
		ID:           cfg.WorkflowID,
		Status:       "active",
		Description:  cfg.WorkflowDescription,
	})
	if err != nil {
		return Anchors{}, err
	}
	workflow, _, err := store.Update(ctx, &fhir.Resource{Type: fhir.TypePlanDefinition, ID: cfg.WorkflowID, Body: body})
	if err != nil {
		return Anchors{}, fmt.Errorf("upsert workflow anchor: %w", err)
	}
	out.Workflow = workflow.Reference()
	return out, nil
}
