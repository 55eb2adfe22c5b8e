package classify

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"floorbot/internal/domain"

	"gopkg.in/yaml.v3"
)

// Rule maps a keyword pattern to a category. Rules are evaluated top to
// bottom and the first match wins.
type Rule struct {
	Pattern  *regexp.Regexp
	Category domain.Category
}

// negatedTail matches a negation word right before a keyword hit, as in
// "não parou a produção".
var negatedTail = regexp.MustCompile(`(?i)\b(n[aã]o|nem|nunca)\s+$`)

// Matches reports whether any occurrence of the pattern in text is not
// directly negated.
func (r Rule) Matches(text string) bool {
	for _, loc := range r.Pattern.FindAllStringIndex(text, -1) {
		if !negatedTail.MatchString(text[:loc[0]]) {
			return true
		}
	}
	return false
}

// DefaultRules covers the most frequent floor reports. Order matters: a
// broken part that also stopped the line is still a breakage report.
var DefaultRules = []Rule{
	{regexp.MustCompile(`(?i)\b(quebr\w*|trinc\w*|rachou|rachad[ao]|partiu|estourou|rompeu|danificad[ao])`), domain.CategoryPartBreakage},
	{regexp.MustCompile(`(?i)(falh(a|ou) (na|da|no|do) (m[aá]quina|equipamento|motor)|m[aá]quina (travou|parou de funcionar|n[aã]o liga|com defeito|desligou)|equipamento (travou|com defeito|n[aã]o liga))`), domain.CategoryMachineFailure},
	{regexp.MustCompile(`(?i)(falt(a|ando|ou) (de )?(insumo|material|mat[eé]ria[- ]prima|embalage\w*|estoque)|sem (insumo|mat[eé]ria[- ]prima|estoque)|acabou o (insumo|material|estoque))`), domain.CategoryMissingSupply},
	{regexp.MustCompile(`(?i)\b(atras(o|ad[ao]|ou)|vai atrasar|fora do prazo)`), domain.CategoryDelay},
	{regexp.MustCompile(`(?i)(preciso de|precisamos de|solicit\w+|requisi[cç][aã]o|pedido de)\s.*(material|pe[cç]as?|ferramenta|insumo|epi)`), domain.CategoryMaterialRequest},
	{regexp.MustCompile(`(?i)\b(risco|perigo\w*|vazamento|inc[eê]ndio|curto[- ]circuito|acidente|insegur[ao])`), domain.CategoryRisk},
	{regexp.MustCompile(`(?i)(parada de produ[cç][aã]o|linha parad[ao]|produ[cç][aã]o parad[ao]|parou a (produ[cç][aã]o|linha))`), domain.CategoryProductionStop},
	{regexp.MustCompile(`(?i)\b(urgente|urg[eê]ncia|imediatamente|o mais r[aá]pido poss[ií]vel|asap)`), domain.CategoryUrgentRequest},
	{regexp.MustCompile(`(?i)(nota fiscal|fatura|boleto|or[cç]amento|pagamento|reembolso|custo total)`), domain.CategoryFinancialInfo},
}

type keywordRulesFile struct {
	Rules []struct {
		Pattern  string `yaml:"pattern"`
		Category string `yaml:"category"`
	} `yaml:"rules"`
}

// LoadKeywordRules reads site-specific rules from a YAML file. Patterns are
// matched case-insensitively and must name a taxonomy category.
func LoadKeywordRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword rules: %w", err)
	}
	var f keywordRulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse keyword rules yaml: %w", err)
	}
	rules := make([]Rule, 0, len(f.Rules))
	for i, r := range f.Rules {
		pattern := strings.TrimSpace(r.Pattern)
		if pattern == "" {
			return nil, fmt.Errorf("keyword rule %d: empty pattern", i)
		}
		category := domain.Category(strings.TrimSpace(r.Category))
		if !category.Valid() {
			return nil, fmt.Errorf("keyword rule %d: unknown category %q", i, r.Category)
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("keyword rule %d: %w", i, err)
		}
		rules = append(rules, Rule{Pattern: re, Category: category})
	}
	return rules, nil
}

func matchRules(rules []Rule, text string) (domain.Category, bool) {
	for _, r := range rules {
		if r.Matches(text) {
			return r.Category, true
		}
	}
	return "", false
}
