package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
	"github.com/leadforge/prospect-cli/pkg/anthropic"
	"github.com/leadforge/prospect-cli/pkg/browser"
)

const scraperAgent = "page-scraper"

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?\d{1,3}[\s.-]?)?(?:\(\d{2,3}\)?[-. ]?)?(?:\d{2,4}[-. ]?){2,4}\d{2,4}`)
	digitRe = regexp.MustCompile(`\D`)
)

// extractContacts pulls email addresses and phone numbers out of raw page
// text. Phone candidates are normalized to digits and kept only when the
// digit count is plausible for a phone number.
func extractContacts(content string) model.ContactDetails {
	var c model.ContactDetails
	if content == "" {
		return c
	}
	seen := make(map[string]struct{})
	for _, email := range emailRe.FindAllString(content, -1) {
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		c.Emails = append(c.Emails, email)
	}
	for _, raw := range phoneRe.FindAllString(content, -1) {
		digits := digitRe.ReplaceAllString(raw, "")
		if len(digits) < 9 || len(digits) > 15 {
			continue
		}
		if _, ok := seen[digits]; ok {
			continue
		}
		seen[digits] = struct{}{}
		c.Phones = append(c.Phones, digits)
	}
	return c
}

const scrapeDecisionSystem = `You drive a web browser to find a business's contact email and phone number.
You receive a simplified list of the page's interactive elements and your action history, and reply with exactly one JSON object choosing the next action:
1. {"action": "findAndClick", "params": {"selector": "a", "text": "link text"}} - click the link containing the text. Preferred for navigation; try "Kontakt" or "Contact" first.
2. {"action": "clickElement", "params": {"selector": "[data-agent-id=...]"}} - click a specific element when findAndClick does not fit.
3. {"action": "typeText", "params": {"selector": "[data-agent-id=...]", "text": "..."}} - type into a form field.
4. {"action": "scrapeContent", "params": {}} - read the full page text. Use when the contact details are likely on the current page.
5. {"action": "finish", "params": {}} - stop: you found the data, are stuck, or believe the page has none.
Output only the JSON object.`

const profileExtractSystem = `Extract the business profile from the page text.
Respond with a single JSON object and nothing else:
{"companyName": "...", "description": "one concrete sentence about what the business does"}
Use empty strings for anything the text does not reveal.`

// PageScraper visits classified links with a remote-controlled browser,
// letting the model steer toward a contact page, and regex-extracts
// contact details from scraped text.
type PageScraper struct {
	llm     anthropic.Client
	store   store.TaskStore
	browser browser.Client
	model   string
	tokens  int64

	maxSteps  int
	batchSize int
}

func NewPageScraper(llm anthropic.Client, st store.TaskStore, bc browser.Client, llmModel string, maxTokens int64, maxSteps, batchSize int) *PageScraper {
	return &PageScraper{
		llm: llm, store: st, browser: bc,
		model: llmModel, tokens: maxTokens,
		maxSteps: maxSteps, batchSize: batchSize,
	}
}

// RunCompanyPages scrapes the selected direct company links into the
// company-pages bucket.
func (p *PageScraper) RunCompanyPages(ctx context.Context, task *model.Task) error {
	links, err := p.selectedLinks(task)
	if err != nil {
		return err
	}
	return p.scrapePages(ctx, task, links.CompanyURLs, model.SourceCompanyWebsite, model.BucketCompanyPages)
}

// RunPortalPages scrapes the selected portal links into the portal-pages
// bucket.
func (p *PageScraper) RunPortalPages(ctx context.Context, task *model.Task) error {
	links, err := p.selectedLinks(task)
	if err != nil {
		return err
	}
	return p.scrapePages(ctx, task, links.PortalURLs, model.SourcePortal, model.BucketPortalPages)
}

func (p *PageScraper) selectedLinks(task *model.Task) (model.ClassifiedLinks, error) {
	var links model.ClassifiedLinks
	if err := intermediateAs(task, model.IntermediateClassifiedLinks, &links); err != nil {
		return links, eris.Wrap(err, "scraper: load classified links")
	}
	return links, nil
}

// scrapePages works through targets in fixed-size parallel batches with a
// pause/terminate check between batches. Records without any contact data
// are dropped; an empty target list completes the step without work.
func (p *PageScraper) scrapePages(ctx context.Context, task *model.Task, targets []model.SearchResult, sourceType model.SourceType, bucket string) error {
	if len(targets) == 0 {
		logProgress(ctx, p.store, task.ID, scraperAgent,
			fmt.Sprintf("no %s links selected, nothing to scrape", sourceType))
		return nil
	}

	var mu sync.Mutex
	var records []model.ScrapedRecord

	for start := 0; start < len(targets); start += p.batchSize {
		stop, err := checkpoint(ctx, p.store, task.ID)
		if err != nil {
			return eris.Wrap(err, "scraper: checkpoint")
		}
		if stop {
			return nil
		}

		end := start + p.batchSize
		if end > len(targets) {
			end = len(targets)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.batchSize)
		for _, target := range targets[start:end] {
			g.Go(func() error {
				rec := p.scrapeOne(gctx, task.ID, target, sourceType)
				if !rec.ContactDetails.HasAny() {
					return nil
				}
				mu.Lock()
				records = append(records, rec)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "scraper: batch")
		}
	}

	if err := p.store.AppendResults(ctx, task.ID, bucket, records); err != nil {
		return eris.Wrap(err, "scraper: persist records")
	}
	logProgress(ctx, p.store, task.ID, scraperAgent,
		fmt.Sprintf("scraped %d %s links, %d with contact data", len(targets), sourceType, len(records)))
	return nil
}

// scrapeOne drives one browser session through the decision loop. Errors
// degrade to a contact-less record which the caller drops; one bad page
// never fails the step.
func (p *PageScraper) scrapeOne(ctx context.Context, taskID string, target model.SearchResult, sourceType model.SourceType) model.ScrapedRecord {
	rec := model.ScrapedRecord{
		CompanyName: target.Title,
		SourceURL:   target.Link,
		SourceType:  sourceType,
	}

	content, contacts := p.browse(ctx, taskID, target.Link)
	rec.ContactDetails = contacts
	if content != "" {
		p.fillProfile(ctx, &rec, content)
	}
	return rec
}

// ScrapeContacts runs the contact-hunting browser loop against one URL.
// Used by the contact enricher for records that arrived without contact
// data.
func (p *PageScraper) ScrapeContacts(ctx context.Context, taskID, url string) model.ContactDetails {
	_, contacts := p.browse(ctx, taskID, url)
	return contacts
}

// browse opens a session on url and lets the model steer for up to
// maxSteps actions. The loop ends on finish, after the first content
// scrape, or once both an email and a phone turned up. The session is
// always closed.
func (p *PageScraper) browse(ctx context.Context, taskID, url string) (string, model.ContactDetails) {
	var contacts model.ContactDetails

	session := browser.NewSession(p.browser)
	defer session.Close()

	if err := session.Navigate(ctx, url); err != nil {
		zap.L().Warn("navigation failed",
			zap.String("task", taskID), zap.String("url", url), zap.Error(err))
		return "", contacts
	}

	var content string
	history := []string{"1. opened " + url}
	for step := 0; step < p.maxSteps; step++ {
		dom, err := session.Observe(ctx)
		if err != nil || dom == "" {
			break
		}

		decision := p.decide(ctx, dom, history)
		if decision.Action == "finish" {
			break
		}
		if decision.Action == browser.ActionExtract {
			text, err := session.Extract(ctx)
			if err != nil {
				break
			}
			content += "\n" + text
			contacts.Merge(extractContacts(text))
			break
		}

		if err := p.act(ctx, session, decision); err != nil {
			zap.L().Warn("browser action failed",
				zap.String("task", taskID), zap.String("action", decision.Action), zap.Error(err))
			break
		}
		history = append(history, fmt.Sprintf("%d. %s %s", step+2, decision.Action, decision.rawParams()))

		if len(contacts.Emails) > 0 && len(contacts.Phones) > 0 {
			break
		}
	}
	return content, contacts
}

type browserDecision struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

func (d browserDecision) rawParams() string {
	raw, err := json.Marshal(d.Params)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func (d browserDecision) str(key string) string {
	s, _ := d.Params[key].(string)
	return s
}

// decide asks the model for the next browser action. Any failure means
// finish; the loop then keeps whatever it has.
func (p *PageScraper) decide(ctx context.Context, dom string, history []string) browserDecision {
	prompt := fmt.Sprintf("Current page elements:\n```\n%s\n```\n\nAction history:\n%s",
		dom, strings.Join(history, "\n"))

	resp, err := p.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: p.tokens,
		System:    scrapeDecisionSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		zap.L().Warn("scrape decision failed, finishing", zap.Error(err))
		return browserDecision{Action: "finish"}
	}
	resp.Usage.LogCost(p.model, scraperAgent)

	var d browserDecision
	if err := decodeObject(resp.Text(), &d); err != nil || d.Action == "" {
		return browserDecision{Action: "finish"}
	}
	return d
}

func (p *PageScraper) act(ctx context.Context, session *browser.Session, d browserDecision) error {
	switch d.Action {
	case browser.ActionClickText:
		return session.ClickText(ctx, d.str("selector"), d.str("text"))
	case browser.ActionClick:
		return session.Click(ctx, d.str("selector"))
	case browser.ActionType:
		return session.Type(ctx, d.str("selector"), d.str("text"))
	default:
		return eris.Errorf("scraper: unknown action %q", d.Action)
	}
}

type profileReply struct {
	CompanyName string `json:"companyName"`
	Description string `json:"description"`
}

// fillProfile extracts name and description from the scraped text. Failure
// keeps the search-result title as the name.
func (p *PageScraper) fillProfile(ctx context.Context, rec *model.ScrapedRecord, content string) {
	resp, err := p.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: p.tokens,
		System:    profileExtractSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: content}},
	})
	if err != nil {
		zap.L().Warn("profile extraction failed", zap.String("url", rec.SourceURL), zap.Error(err))
		return
	}
	resp.Usage.LogCost(p.model, scraperAgent)

	var reply profileReply
	if err := decodeObject(resp.Text(), &reply); err != nil {
		return
	}
	if reply.CompanyName != "" {
		rec.CompanyName = reply.CompanyName
	}
	rec.Description = reply.Description
}
