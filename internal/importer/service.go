package importer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ServiceType string

const (
	ServiceOilChange       ServiceType = "oil-change"
	ServiceTireRotation    ServiceType = "tire-rotation"
	ServiceStateInspection ServiceType = "state-inspection"
	ServiceBrake           ServiceType = "brake-service"
	ServiceTransmission    ServiceType = "transmission"
)

var serviceKeywords = []struct {
	keywords []string
	service  ServiceType
}{
	{[]string{"oil", "5w"}, ServiceOilChange},
	{[]string{"rotate", "tire rotation"}, ServiceTireRotation},
	{[]string{"inspection"}, ServiceStateInspection},
	{[]string{"brake"}, ServiceBrake},
	{[]string{"transmission"}, ServiceTransmission},
}

// InferServiceType tags a free-text repair description. Descriptions that
// match nothing are treated as oil changes.
func InferServiceType(description string) ServiceType {
	d := strings.ToLower(description)
	for _, group := range serviceKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(d, kw) {
				return group.service
			}
		}
	}
	return ServiceOilChange
}

type Interval struct {
	Days  int `json:"days"`
	Miles int `json:"miles"`
}

// IntervalSource supplies tenant-configured service intervals. ok is false
// when the tenant has none for the service type.
type IntervalSource interface {
	ServiceInterval(ctx context.Context, tenantID uuid.UUID, service ServiceType) (Interval, bool, error)
}

type Schedule struct {
	Default Interval
}

func DefaultSchedule() Schedule {
	return Schedule{Default: Interval{Days: 90, Miles: 5000}}
}

// NextDue projects the next service from the last one. A zero interval
// component falls back to the schedule default.
func (s Schedule) NextDue(serviceDate time.Time, mileage int, interval Interval) (time.Time, int) {
	if interval.Days <= 0 {
		interval.Days = s.Default.Days
	}
	if interval.Miles <= 0 {
		interval.Miles = s.Default.Miles
	}
	return serviceDate.AddDate(0, 0, interval.Days), mileage + interval.Miles
}
