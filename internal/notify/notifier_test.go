package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"floorbot/internal/domain"
)

type staticResolver struct {
	users []domain.User
	err   error
}

func (r staticResolver) Resolve(context.Context, string, []domain.Target, string) ([]domain.User, error) {
	return r.users, r.err
}

type recordingGateway struct {
	sent []string
	fail map[string]bool
}

func (g *recordingGateway) Send(_ context.Context, _, phone, _ string) error {
	if g.fail[phone] {
		return errors.New("delivery rejected")
	}
	g.sent = append(g.sent, phone)
	return nil
}

func usersWithPhones(n, distinct int) []domain.User {
	users := make([]domain.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, domain.User{
			Name:  fmt.Sprintf("user-%d", i),
			Phone: fmt.Sprintf("+55 11 9%08d", i%distinct),
		})
	}
	return users
}

func TestNotifyCapsAtTenDistinctPhones(t *testing.T) {
	gw := &recordingGateway{}
	n := NewNotifier(staticResolver{users: usersWithPhones(15, 12)}, gw)

	sent, err := n.Notify(context.Background(), "acme", "alerta", domain.TargetsFor(domain.SeverityCritical), "")
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(gw.sent) != MaxRecipients || len(sent) != MaxRecipients {
		t.Fatalf("expected exactly %d sends, gateway=%d returned=%d", MaxRecipients, len(gw.sent), len(sent))
	}
	seen := map[string]bool{}
	for _, p := range gw.sent {
		if seen[p] {
			t.Fatalf("phone %s notified twice", p)
		}
		seen[p] = true
	}
}

func TestNotifyIsolatesFailures(t *testing.T) {
	users := []domain.User{
		{Name: "a", WhatsApp: "5511900000001"},
		{Name: "b", WhatsApp: "5511900000002"},
		{Name: "c", WhatsApp: "5511900000003"},
	}
	gw := &recordingGateway{fail: map[string]bool{"5511900000002": true}}
	sent, err := NewNotifier(staticResolver{users: users}, gw).Notify(context.Background(), "acme", "x", []domain.Target{domain.TargetManagement}, "")
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(sent) != 2 || sent[0] != "5511900000001" || sent[1] != "5511900000003" {
		t.Fatalf("unexpected sent list: %v", sent)
	}
}

func TestRecipientsSkipsUnusablePhones(t *testing.T) {
	users := []domain.User{
		{Name: "short", Phone: "1234"},
		{Name: "none"},
		{Name: "wa", Phone: "551133334444", WhatsApp: "5511999990000"},
		{Name: "dup", Phone: "+55 (11) 99999-0000"},
	}
	got := Recipients(users)
	if len(got) != 1 || got[0] != "5511999990000" {
		t.Fatalf("unexpected recipients: %v", got)
	}
}

func TestNotifyReturnsDirectoryError(t *testing.T) {
	gw := &recordingGateway{}
	_, err := NewNotifier(staticResolver{err: errors.New("down")}, gw).Notify(context.Background(), "acme", "x", nil, "")
	if err == nil || len(gw.sent) != 0 {
		t.Fatalf("expected directory error and no sends, err=%v sent=%v", err, gw.sent)
	}
}
