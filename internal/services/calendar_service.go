package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/yukikurage/taskflow/internal/constants"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/repository"
)

var ErrCalendarNotFound = apierrors.New(apierrors.KindNotFound, "Calendar not found")

// CalendarClaims identify the owner of a calendar feed.
type CalendarClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// CalendarService signs calendar feed links and renders the feeds.
type CalendarService struct {
	users  repository.UserRepository
	tasks  repository.TaskRepository
	secret []byte
	appURL string
	now    func() time.Time
}

// NewCalendarService creates a new CalendarService. appURL is the public base
// URL the feed links are built from.
func NewCalendarService(users repository.UserRepository, tasks repository.TaskRepository, secret []byte, appURL string) *CalendarService {
	return &CalendarService{
		users:  users,
		tasks:  tasks,
		secret: secret,
		appURL: strings.TrimRight(appURL, "/"),
		now:    time.Now,
	}
}

// Link returns the feed URL of the session's user.
func (s *CalendarService) Link(sess *Session) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, CalendarClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatUint(sess.UserID(), 10),
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
		Purpose: constants.CalendarTokenPurpose,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apierrors.Wrap(apierrors.KindUnexpected, "failed to sign calendar token", err)
	}
	return s.appURL + "/calendar/" + signed + constants.CalendarFeedSuffix, nil
}

// ParseToken returns the user id a feed token was issued for.
func (s *CalendarService) ParseToken(tokenString string) (uint64, error) {
	tokenString = strings.TrimSuffix(tokenString, constants.CalendarFeedSuffix)

	claims := &CalendarClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Purpose != constants.CalendarTokenPurpose {
		return 0, ErrCalendarNotFound
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrCalendarNotFound
	}
	return userID, nil
}

// Feed renders the iCalendar feed behind a feed token: one all-day event per
// incomplete task with a due date.
func (s *CalendarService) Feed(ctx context.Context, tokenString string) ([]byte, error) {
	userID, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, notFoundOr(ErrCalendarNotFound, "failed to find calendar owner", err)
	}

	tasks, _, err := s.tasks.List(ctx, repository.TaskFilter{
		UserID:        userID,
		Completed:     boolPtr(false),
		HasDueDate:    true,
		SortByDueDate: true,
	})
	if err != nil {
		return nil, apierrors.Storage("failed to list calendar tasks", err)
	}

	return renderICS(tasks, s.now()), nil
}

func renderICS(tasks []models.Task, now time.Time) []byte {
	var b strings.Builder
	stamp := now.UTC().Format("20060102T150405Z")

	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "PRODID:-//taskflow//tasks//EN")
	writeLine(&b, "CALSCALE:GREGORIAN")
	writeLine(&b, "X-WR-CALNAME:Tasks")

	for _, task := range tasks {
		if task.DueDate == nil {
			continue
		}
		day := task.DueDate.In(now.Location())
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

		writeLine(&b, "BEGIN:VEVENT")
		writeLine(&b, fmt.Sprintf("UID:task-%d@taskflow", task.ID))
		writeLine(&b, "DTSTAMP:"+stamp)
		writeLine(&b, "DTSTART;VALUE=DATE:"+start.Format("20060102"))
		writeLine(&b, "DTEND;VALUE=DATE:"+start.AddDate(0, 0, 1).Format("20060102"))
		writeLine(&b, "SUMMARY:"+escapeICS(task.Title))
		if task.Description != "" {
			writeLine(&b, "DESCRIPTION:"+escapeICS(task.Description))
		}
		writeLine(&b, fmt.Sprintf("PRIORITY:%d", icsPriority(task.Priority)))
		writeLine(&b, "END:VEVENT")
	}

	writeLine(&b, "END:VCALENDAR")
	return []byte(b.String())
}

// writeLine folds content lines so that no physical line, including the
// leading space of a continuation, exceeds 75 octets.
func writeLine(b *strings.Builder, line string) {
	limit := 75
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8Start(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = 74
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}

func utf8Start(c byte) bool {
	return c&0xC0 != 0x80
}

var icsEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
)

func escapeICS(s string) string {
	return icsEscaper.Replace(s)
}

// icsPriority maps task priority 1..4 onto the iCalendar 1..9 scale.
func icsPriority(priority int) int {
	switch priority {
	case 1:
		return 1
	case 2:
		return 3
	case 3:
		return 5
	default:
		return 9
	}
}
