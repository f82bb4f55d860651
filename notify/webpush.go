package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"detectcam/video/process"

	"github.com/SherClockHolmes/webpush-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const pushTopic = "detectcam_detection"

type VAPIDKey struct {
	Public  string
	Private string
}

// Subscription is a browser registered for detection alerts. Each one carries
// its own filter, applied on top of the notifier's.
type Subscription struct {
	gorm.Model

	Peer     string
	Endpoint string `gorm:"uniqueIndex;size:512"`
	// Raw webpush.Subscription, including key material.
	Raw string

	// Classes is a comma separated, lower case class list; empty means all.
	Classes       string
	MinConfidence float64

	Delivered          int
	LastSuccess        *time.Time
	LastFailure        *time.Time
	LastFailureMessage string
}

func (s *Subscription) classList() []string {
	if s.Classes == "" {
		return nil
	}
	return strings.Split(s.Classes, ",")
}

// Wants reports whether d passes the subscription's filter.
func (s *Subscription) Wants(d process.Detection) bool {
	if d.Confidence < s.MinConfidence {
		return false
	}
	classes := s.classList()
	if len(classes) == 0 {
		return true
	}
	name := strings.ToLower(d.ClassName)
	for _, c := range classes {
		if c == name {
			return true
		}
	}
	return false
}

// subscribeRequest is the body of /push_subscribe.
type subscribeRequest struct {
	Subscription  webpush.Subscription `json:"subscription"`
	Classes       []string             `json:"classes"`
	MinConfidence float64              `json:"min_confidence"`
}

func decodeSubscribe(r io.Reader) (*subscribeRequest, error) {
	req := &subscribeRequest{}
	if err := json.NewDecoder(r).Decode(req); err != nil {
		return nil, err
	}
	if req.Subscription.Endpoint == "" {
		return nil, errors.New("subscription endpoint missing")
	}
	if req.MinConfidence < 0 || req.MinConfidence > 1 {
		return nil, fmt.Errorf("min_confidence %v out of range", req.MinConfidence)
	}
	return req, nil
}

func normalizeClasses(in []string) string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return strings.Join(out, ",")
}

// pushMessage is the payload rendered by the service worker.
type pushMessage struct {
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Tag       string            `json:"tag"`
	Detection process.Detection `json:"detection"`
}

func newPushMessage(n *Notification) pushMessage {
	return pushMessage{
		Title:     fmt.Sprintf("%s detected", n.Detection.ClassName),
		Body:      fmt.Sprintf("%.0f%% confidence on %s at %s", n.Detection.Confidence*100, n.Source, n.TimeString),
		Tag:       n.Identifier,
		Detection: n.Detection,
	}
}

// WebPush delivers notifications to browsers subscribed through the /push_*
// endpoints. Subscriptions and the VAPID key live in the database.
type WebPush struct {
	// Key is generated on first start and persisted.
	Key *VAPIDKey
	// Subscriber is the contact address given to push services.
	Subscriber string

	db *gorm.DB
}

func loadKey(db *gorm.DB) (*VAPIDKey, error) {
	key := &VAPIDKey{}
	err := db.First(key).Error
	if err == nil {
		log.Infof("Web push VAPID keys loaded from database")
		return key, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if key.Private, key.Public, err = webpush.GenerateVAPIDKeys(); err != nil {
		return nil, err
	}
	if err := db.Create(key).Error; err != nil {
		return nil, err
	}
	log.Infof("Web push VAPID keys generated")
	return key, nil
}

func NewWebPush(db *gorm.DB, subscriber string) (*WebPush, error) {
	if err := db.AutoMigrate(&VAPIDKey{}, &Subscription{}); err != nil {
		return nil, err
	}
	key, err := loadKey(db)
	if err != nil {
		return nil, err
	}
	return &WebPush{Key: key, Subscriber: subscriber, db: db}, nil
}

func (p *WebPush) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/push_get_pubkey", p.handleGetPubkey)
	mux.HandleFunc("/push_get_subscriptions", p.handleGetSubscriptions)
	mux.HandleFunc("/push_subscribe", p.handleSubscribe)
	mux.HandleFunc("/push_unsubscribe", p.handleUnsubscribe)
	// Sends a fake detection to every subscriber.
	mux.HandleFunc("/push_test", p.handleTest)
}

func (p *WebPush) handleGetPubkey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, p.Key.Public)
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handleSubscribe registers a subscription, or updates the filter of an
// endpoint already registered.
func (p *WebPush) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	req, err := decodeSubscribe(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	raw, err := json.Marshal(&req.Subscription)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sub := &Subscription{}
	err = p.db.Where(Subscription{Endpoint: req.Subscription.Endpoint}).
		Assign(Subscription{
			Peer:          r.RemoteAddr,
			Raw:           string(raw),
			Classes:       normalizeClasses(req.Classes),
			MinConfidence: req.MinConfidence,
		}).
		FirstOrCreate(sub).Error
	if err != nil {
		log.Errorf("Failed to save push subscription: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.WithFields(log.Fields{
		"peer":    sub.Peer,
		"classes": sub.Classes,
		"min":     sub.MinConfidence,
	}).Infof("Push subscription %d saved", sub.ID)
}

func (p *WebPush) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var ws webpush.Subscription
	if err := json.NewDecoder(r.Body).Decode(&ws); err != nil || ws.Endpoint == "" {
		http.Error(w, "invalid subscription", http.StatusBadRequest)
		return
	}
	res := p.db.Where("endpoint = ?", ws.Endpoint).Delete(&Subscription{})
	if res.Error != nil {
		log.Errorf("Failed to delete push subscription: %v", res.Error)
		http.Error(w, res.Error.Error(), http.StatusInternalServerError)
		return
	}
	if res.RowsAffected == 0 {
		http.Error(w, "subscription not found", http.StatusNotFound)
		return
	}
	log.Infof("Removed push subscription for %v", r.RemoteAddr)
}

// subscriptionView is a Subscription without key material.
type subscriptionView struct {
	ID            uint       `json:"id"`
	Peer          string     `json:"peer"`
	Created       time.Time  `json:"created"`
	Classes       []string   `json:"classes"`
	MinConfidence float64    `json:"min_confidence"`
	Delivered     int        `json:"delivered"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	LastFailure   *time.Time `json:"last_failure,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

func viewOf(s *Subscription) subscriptionView {
	return subscriptionView{
		ID:            s.ID,
		Peer:          s.Peer,
		Created:       s.CreatedAt,
		Classes:       s.classList(),
		MinConfidence: s.MinConfidence,
		Delivered:     s.Delivered,
		LastSuccess:   s.LastSuccess,
		LastFailure:   s.LastFailure,
		LastError:     s.LastFailureMessage,
	}
}

func (p *WebPush) handleGetSubscriptions(w http.ResponseWriter, r *http.Request) {
	var subs []*Subscription
	if err := p.db.Order("created_at").Find(&subs).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]subscriptionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, viewOf(s))
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(views); err != nil {
		log.Warnf("Failed to write subscriptions: %v", err)
	}
}

func (p *WebPush) handleTest(w http.ResponseWriter, r *http.Request) {
	if err := p.Notify(testNotification(time.Now())); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// testNotification is a detection every subscription accepts.
func testNotification(t time.Time) *Notification {
	return &Notification{
		TimeString: t.Format("3:04 PM"),
		Identifier: "test",
		Source:     "test",
		Detection: process.Detection{
			ClassID:    -1,
			ClassName:  "test",
			Confidence: 1,
		},
	}
}

// recipients returns the subscriptions whose filter accepts n. The test
// notification goes to everyone.
func recipients(subs []*Subscription, n *Notification) []*Subscription {
	var out []*Subscription
	for _, s := range subs {
		if n.Identifier == "test" || s.Wants(n.Detection) {
			out = append(out, s)
		}
	}
	return out
}

func (p *WebPush) send(s *Subscription, payload []byte) error {
	var ws webpush.Subscription
	if err := json.Unmarshal([]byte(s.Raw), &ws); err != nil {
		return fmt.Errorf("subscription %d: %w", s.ID, err)
	}
	resp, err := webpush.SendNotification(payload, &ws, &webpush.Options{
		Subscriber:      p.Subscriber,
		VAPIDPublicKey:  p.Key.Public,
		VAPIDPrivateKey: p.Key.Private,
		TTL:             120,
		Urgency:         webpush.UrgencyHigh,
		Topic:           pushTopic,
	})
	if resp != nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			log.Infof("Push service reports %v for subscription %d, deleting", resp.Status, s.ID)
			return p.db.Delete(s).Error
		}
		if err == nil && resp.StatusCode >= 400 {
			err = fmt.Errorf("push service returned %v", resp.Status)
		}
	}

	now := time.Now()
	if err != nil {
		log.Warnf("Web push to subscription %d failed: %v", s.ID, err)
		s.LastFailure = &now
		s.LastFailureMessage = err.Error()
	} else {
		s.Delivered++
		s.LastSuccess = &now
	}
	return p.db.Save(s).Error
}

// Notify pushes n to every subscription whose filter accepts its detection.
func (p *WebPush) Notify(n *Notification) error {
	payload, err := json.Marshal(newPushMessage(n))
	if err != nil {
		return err
	}
	var subs []*Subscription
	if err := p.db.Find(&subs).Error; err != nil {
		return err
	}
	targets := recipients(subs, n)
	if len(targets) == 0 {
		log.Debugf("No subscription wants %v", n.Detection.ClassName)
		return nil
	}

	log.Infof("Pushing %v to %d of %d subscriptions", n.Detection.ClassName, len(targets), len(subs))
	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s *Subscription) {
			defer wg.Done()
			if err := p.send(s, payload); err != nil {
				log.Errorf("Web push failed: %v", err)
			}
		}(s)
	}
	wg.Wait()
	return nil
}
