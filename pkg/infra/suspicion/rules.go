package suspicion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/avct/uasurfer"
	"github.com/mitchellh/mapstructure"
)

const (
	SignalSensitivePath    = "sensitive_path"
	SignalMissingUserAgent = "missing_user_agent"
	SignalBotUserAgent     = "bot_user_agent"
	SignalProxyChain       = "proxy_chain"
)

// Signal is one matched detection rule. Hard signals reject the request on
// their own; soft signals only accumulate toward escalation.
type Signal struct {
	Name string
	Hard bool
}

// Request carries the attributes the detection rules look at.
type Request struct {
	Path         string
	UserAgent    string
	ForwardedFor string
}

// PatternRule is one configurable regex rule.
type PatternRule struct {
	Name    string `mapstructure:"name"`
	Pattern string `mapstructure:"pattern"`
}

type RulesConfig struct {
	SensitivePaths    []map[string]interface{}
	BotAgents         []map[string]interface{}
	MaxForwardedDepth int
}

var defaultSensitivePathRules = []PatternRule{
	{Name: "env_file", Pattern: `(?i)\.env\b`},
	{Name: "git_dir", Pattern: `(?i)/\.git(/|$)`},
	{Name: "aws_credentials", Pattern: `(?i)\.aws/credentials`},
	{Name: "etc_passwd", Pattern: `(?i)/etc/passwd`},
	{Name: "path_traversal", Pattern: `\.\./`},
	{Name: "wordpress", Pattern: `(?i)/wp-(admin|login|content|includes)`},
	{Name: "phpmyadmin", Pattern: `(?i)/phpmyadmin`},
	{Name: "admin_panel", Pattern: `(?i)/(admin|administrator)(/|$)`},
	{Name: "cgi_bin", Pattern: `(?i)/cgi-bin/`},
	{Name: "php_probe", Pattern: `(?i)\.php$`},
	{Name: "backup_file", Pattern: `(?i)\.(bak|sql|backup|old)$`},
	{Name: "code_eval", Pattern: `(?i)(eval|exec|system)\(`},
}

var defaultBotAgentRules = []PatternRule{
	{Name: "http_tooling", Pattern: `(?i)(curl|wget|python-requests|python-urllib|go-http-client|libwww|okhttp|httpclient)`},
	{Name: "scanner", Pattern: `(?i)(nikto|sqlmap|nmap|masscan|zgrab|dirbuster|gobuster|wpscan|hydra|nuclei)`},
	{Name: "generic_bot", Pattern: `(?i)(bot|crawler|spider|scraper)`},
}

const defaultMaxForwardedDepth = 5

type compiledRule struct {
	name string
	re   *regexp.Regexp
}

// RuleSet holds the compiled detection rules. It is immutable after
// construction and safe for concurrent use.
type RuleSet struct {
	sensitive []compiledRule
	bots      []compiledRule
	maxDepth  int
}

func NewRuleSet(cfg RulesConfig) (*RuleSet, error) {
	sensitive, err := compileRules(cfg.SensitivePaths, defaultSensitivePathRules)
	if err != nil {
		return nil, err
	}
	bots, err := compileRules(cfg.BotAgents, defaultBotAgentRules)
	if err != nil {
		return nil, err
	}

	maxDepth := cfg.MaxForwardedDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxForwardedDepth
	}
	return &RuleSet{sensitive: sensitive, bots: bots, maxDepth: maxDepth}, nil
}

func compileRules(raw []map[string]interface{}, defaults []PatternRule) ([]compiledRule, error) {
	rules := defaults
	if len(raw) > 0 {
		var decoded []PatternRule
		if err := mapstructure.Decode(raw, &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode detection rules: %w", err)
		}
		rules = decoded
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern in rule %s: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{name: rule.Name, re: re})
	}
	return compiled, nil
}

// Evaluate runs every rule against the request and returns the matched
// signals. It is pure: no store access, no side effects.
func (r *RuleSet) Evaluate(req Request) []Signal {
	var signals []Signal

	for _, rule := range r.sensitive {
		if rule.re.MatchString(req.Path) {
			signals = append(signals, Signal{Name: SignalSensitivePath, Hard: true})
			break
		}
	}

	ua := strings.TrimSpace(req.UserAgent)
	if ua == "" {
		signals = append(signals, Signal{Name: SignalMissingUserAgent})
	} else if r.isBot(ua) {
		signals = append(signals, Signal{Name: SignalBotUserAgent})
	}

	if forwardedDepth(req.ForwardedFor) > r.maxDepth {
		signals = append(signals, Signal{Name: SignalProxyChain})
	}
	return signals
}

func (r *RuleSet) isBot(ua string) bool {
	for _, rule := range r.bots {
		if rule.re.MatchString(ua) {
			return true
		}
	}
	return uasurfer.Parse(ua).IsBot()
}

func forwardedDepth(header string) int {
	if strings.TrimSpace(header) == "" {
		return 0
	}
	return len(strings.Split(header, ","))
}

// HasHard reports whether any signal rejects the request outright.
func HasHard(signals []Signal) bool {
	for _, s := range signals {
		if s.Hard {
			return true
		}
	}
	return false
}

// Names flattens signals to their names, deduplicated, order preserved.
func Names(signals []Signal) []string {
	names := make([]string, 0, len(signals))
	seen := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		names = append(names, s.Name)
	}
	return names
}
