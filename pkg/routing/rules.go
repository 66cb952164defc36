package routing

import (
	"fmt"
	"strings"

	"github.com/routepay/routepay/pkg/payment"
)

// RuleMatches reports whether every condition of the rule holds for the
// transaction. A rule with no conditions matches everything.
func RuleMatches(rule payment.RoutingRule, tx payment.Transaction) bool {
	for _, cond := range rule.Conditions {
		value, ok := tx.Field(cond.Field)
		if !ok {
			return false
		}
		if !evaluate(value, cond.Operator, cond.Value) {
			return false
		}
	}
	return true
}

func evaluate(fieldValue any, op payment.Operator, condValue any) bool {
	switch op {
	case payment.OpEquals:
		if af, aok := asFloat(fieldValue); aok {
			if bf, bok := asFloat(condValue); bok {
				return af == bf
			}
		}
		return asString(fieldValue) == asString(condValue)
	case payment.OpNotEquals:
		return !evaluate(fieldValue, payment.OpEquals, condValue)
	case payment.OpGreaterThan:
		return compare(fieldValue, condValue) > 0
	case payment.OpLessThan:
		return compare(fieldValue, condValue) < 0
	case payment.OpContains:
		return strings.Contains(asString(fieldValue), asString(condValue))
	case payment.OpIn:
		return inList(fieldValue, condValue)
	case payment.OpNotIn:
		return !inList(fieldValue, condValue)
	default:
		return false
	}
}

// compare returns -1/0/1 for numeric operands. Non-numeric operands are
// unordered and compare as 0; string equality is handled by the equals path.
func compare(a, b any) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return 0
	}
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func inList(fieldValue, condValue any) bool {
	needle := asString(fieldValue)
	switch list := condValue.(type) {
	case []string:
		for _, s := range list {
			if s == needle {
				return true
			}
		}
	case []any:
		for _, item := range list {
			if asString(item) == needle {
				return true
			}
		}
	}
	return false
}
