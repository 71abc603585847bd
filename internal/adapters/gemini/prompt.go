package gemini

import "fmt"

func prompt(url string) string {
	return fmt.Sprintf(`Perform a deep security analysis on the following URL: %s.
Evaluate specifically:
1. SSL Certificate validity (if known/standard).
2. Presence in security blacklists.
3. Phishing indicators (brand impersonation, suspicious paths).
4. Domain Age/Reputation.

Identify specific threat categories (e.g., Worm, Spyware, Trojan, Phishing, Adware).
Provide a concise summary and a clear warning message for the user if dangerous.`, url)
}

func checkSchema() map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"status": map[string]any{"type": "BOOLEAN"},
			"label":  map[string]any{"type": "STRING"},
		},
		"required": []string{"status", "label"},
	}
}

var responseSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"isSafe":    map[string]any{"type": "BOOLEAN"},
		"riskScore": map[string]any{"type": "NUMBER"},
		"threatLevel": map[string]any{
			"type": "STRING",
			"enum": []string{"Safe", "Suspicious", "Dangerous", "Critical"},
		},
		"summary": map[string]any{"type": "STRING"},
		"checks": map[string]any{
			"type": "OBJECT",
			"properties": map[string]any{
				"ssl":       checkSchema(),
				"blacklist": checkSchema(),
				"phishing":  checkSchema(),
				"domainAge": checkSchema(),
			},
			"required": []string{"ssl", "blacklist", "phishing", "domainAge"},
		},
		"detectedThreatTypes": map[string]any{
			"type":  "ARRAY",
			"items": map[string]any{"type": "STRING"},
		},
		"warningMessage": map[string]any{"type": "STRING"},
	},
	"required": []string{"isSafe", "riskScore", "threatLevel", "summary", "checks", "detectedThreatTypes", "warningMessage"},
}
