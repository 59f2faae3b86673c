package payment

import "strings"

var InstructionMap = map[MethodType][]string{
	MethodCOD: {
		"Your order will be delivered to the shipping address",
		"Keep {{amount}} in cash ready when the courier arrives",
		"Pay the courier directly and keep the receipt",
	},

	MethodBkashManual: {
		"Open the bKash app or dial *247#",
		"Choose Send Money and enter {{account_number}}",
		"Send exactly {{amount}} with reference {{order_number}}",
		"Keep the transaction ID, we will confirm your payment shortly",
	},

	MethodNagadManual: {
		"Open the Nagad app or dial *167#",
		"Choose Send Money and enter {{account_number}}",
		"Send exactly {{amount}} with reference {{order_number}}",
		"Keep the transaction ID, we will confirm your payment shortly",
	},

	MethodBkash: {
		"You will be redirected to bKash to pay {{amount}}",
		"Enter your bKash number, the verification code and your PIN",
	},

	MethodSSLCommerz: {
		"You will be redirected to SSLCommerz to pay {{amount}}",
		"Choose a card, mobile banking or internet banking option",
	},
}

// GetInstructions returns the method's own instructions when configured,
// otherwise the built-in steps for its type.
func GetInstructions(m Method) []string {
	if m.Instructions != nil && strings.TrimSpace(*m.Instructions) != "" {
		return splitLines(*m.Instructions)
	}
	if steps, ok := InstructionMap[m.Type]; ok {
		return steps
	}

	return []string{
		"Follow the payment instructions provided with your order {{order_number}}",
	}
}

type InstructionVars map[string]string

func InjectVariables(
	steps []string,
	vars InstructionVars,
) []string {
	result := make([]string, 0, len(steps))

	for _, step := range steps {
		updated := step
		for key, value := range vars {
			updated = strings.ReplaceAll(
				updated,
				"{{"+key+"}}",
				value,
			)
		}
		result = append(result, updated)
	}

	return result
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	return out
}
