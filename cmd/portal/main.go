package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bushta-cyber/fastmed/internal/datasource"
	"github.com/bushta-cyber/fastmed/internal/portal"
	"github.com/bushta-cyber/fastmed/internal/session"
	"github.com/bushta-cyber/fastmed/pkg/config"
	"github.com/bushta-cyber/fastmed/pkg/interfaces"
	"github.com/bushta-cyber/fastmed/pkg/logger"
)

// portal is a smoke client for the portal API: it logs in (or restores a
// persisted session), fetches the snapshots and prints the derived views.
func main() {
	email := flag.String("email", "", "login email (omit to restore a persisted session)")
	password := flag.String("password", "", "login password")
	fixture := flag.Bool("fixture", false, "run against the seeded in-memory fixture instead of the API")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(cfg.LogLevel)

	storage, err := session.NewFileStorage(cfg.Session.StoragePath)
	if err != nil {
		log.WithError(err).Fatal("Failed to open session storage")
	}

	var sessions *session.Store
	var svc *portal.Service
	if *fixture {
		source := datasource.NewFixture(log)
		sessions = session.NewStore(source, storage, log)
		svc = portal.NewService(source, sessions, log)
	} else {
		// The token provider closes over the store declared above; the
		// store exists before the first request goes out.
		httpSource := datasource.NewHTTPSource(&cfg.API, func() string {
			return sessions.AccessToken()
		}, log)
		sessions = session.NewStore(httpSource, storage, log)
		svc = portal.NewService(httpSource, sessions, log)
	}

	ctx := context.Background()

	if *email != "" {
		if _, err := sessions.Login(ctx, *email, *password); err != nil {
			log.WithError(err).Error("Login failed")
			os.Exit(1)
		}
	} else if sess, err := sessions.Restore(ctx); err != nil || sess == nil {
		fmt.Println("No active session; log in with -email and -password")
		os.Exit(1)
	}

	sess, _ := sessions.Current()
	fmt.Printf("Logged in as %s (%s)\n", sess.Identity.Name, sess.Identity.Role)

	if _, err := svc.RefreshAppointments(ctx); err != nil {
		log.WithError(err).Fatal("Failed to fetch appointments")
	}
	fmt.Println("\nUpcoming appointments:")
	for _, apt := range svc.Appointments(interfaces.FilterUpcoming) {
		actions := svc.AppointmentActions(apt)
		marker := " "
		if actions.JoinEmphasized {
			marker = "*"
		}
		fmt.Printf("%s %s %s-%s  %s (%s)\n", marker, apt.Date.Format("2006-01-02"), apt.StartTime, apt.EndTime, apt.Reason, apt.Status)
	}

	if _, err := svc.RefreshConversations(ctx); err != nil {
		log.WithError(err).Fatal("Failed to fetch conversations")
	}
	fmt.Println("\nConversations:")
	for _, conv := range svc.Conversations("") {
		name, err := svc.OtherParticipantName(conv.ID)
		if err != nil {
			continue
		}
		fmt.Printf("  %s (%d unread)\n", name, conv.UnreadCount)
	}

	if _, err := svc.RefreshRecords(ctx); err != nil {
		log.WithError(err).Fatal("Failed to fetch medical records")
	}
	fmt.Println("\nMedical records:")
	for _, record := range svc.Records("") {
		fmt.Printf("  %s  %s\n", record.Date.Format("2006-01-02"), record.Diagnosis)
	}
}
