package appointments

import (
	"sort"
	"time"

	"github.com/bushta-cyber/fastmed/pkg/interfaces"
	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

// View derives render-ready appointment sequences from an immutable
// snapshot. Derivations are pure: safe to re-invoke on every render.
type View struct {
	logger *logger.Logger
	now    func() time.Time
}

// NewView creates a new appointment view
func NewView(log *logger.Logger) *View {
	return &View{
		logger: log,
		now:    time.Now,
	}
}

// DeriveView filters the snapshot to appointments owned by the identity,
// applies the temporal filter relative to the start of the current day, and
// sorts by (date, start time). The past filter sorts most recent first;
// every other filter sorts ascending. Ties keep input order.
func (v *View) DeriveView(appointments []*types.Appointment, identity *types.Identity, filter interfaces.AppointmentFilter) []*types.Appointment {
	if identity == nil {
		return nil
	}

	today := startOfDay(v.now())

	result := make([]*types.Appointment, 0, len(appointments))
	for _, apt := range appointments {
		if !apt.OwnedBy(identity) {
			continue
		}
		if v.matchesFilter(apt, filter, today) {
			result = append(result, apt)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if filter == interfaces.FilterPast {
			return laterThan(result[i], result[j])
		}
		return laterThan(result[j], result[i])
	})

	return result
}

// matchesFilter applies the temporal filter. Date comparisons use calendar
// days: an appointment at midnight today is upcoming and today, one dated
// 23:59 yesterday is neither.
func (v *View) matchesFilter(apt *types.Appointment, filter interfaces.AppointmentFilter, today time.Time) bool {
	day := apt.Day()

	switch filter {
	case interfaces.FilterUpcoming:
		return !day.Before(today) && apt.Status != types.StatusCancelled
	case interfaces.FilterPast:
		return day.Before(today) || apt.Status == types.StatusCompleted
	case interfaces.FilterToday:
		return day.Equal(today)
	default:
		return true
	}
}

// ActionsFor classifies the actions the UI may offer for an appointment.
// Join, reschedule and cancel exist only while the appointment is still
// scheduled; join is emphasized on the day of the appointment. Completed
// and cancelled appointments expose no actions.
func (v *View) ActionsFor(apt *types.Appointment) interfaces.AppointmentActions {
	if apt.Status != types.StatusScheduled {
		return interfaces.AppointmentActions{}
	}

	return interfaces.AppointmentActions{
		CanJoin:        true,
		JoinEmphasized: apt.Day().Equal(startOfDay(v.now())),
		CanReschedule:  true,
		CanCancel:      true,
	}
}

// laterThan reports whether a sorts strictly after b by (date, start time)
func laterThan(a, b *types.Appointment) bool {
	if !a.Day().Equal(b.Day()) {
		return a.Day().After(b.Day())
	}
	return a.StartTime > b.StartTime
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
