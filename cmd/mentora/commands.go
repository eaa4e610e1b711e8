package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage tutoring sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a tutoring session",
	RunE: func(cmd *cobra.Command, args []string) error {
		personaID, _ := cmd.Flags().GetString("persona")
		learnerID, _ := cmd.Flags().GetString("learner")
		if personaID == "" || learnerID == "" {
			return fmt.Errorf("--persona and --learner are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/sessions", map[string]string{
			"persona_id": personaID,
			"learner_id": learnerID,
		})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Started session %s", result["id"])
		return nil
	},
}

var sessionSayCmd = &cobra.Command{
	Use:   "say <session-id> <message>",
	Short: "Send a learner message and print the persona's reply",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		message := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/sessions/"+id+"/messages", map[string]string{
			"content": message,
		})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if reply, ok := result["reply"].(string); ok {
			fmt.Println(reply)
		}
		printStatus("Tier", "%v", result["tier"])
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a tutoring session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cancel, _ := cmd.Flags().GetBool("cancel")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{}
		if cancel {
			body["reason"] = "cancel"
		}
		resp, err := client.post(cmd.Context(), "/v1/sessions/"+args[0]+"/end", body)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session %s is %v", args[0], result["status"])
		if cost, ok := result["cost_minor"].(float64); ok {
			printStatus("Cost", "%d (minor units)", int(cost))
		}
		return nil
	},
}

var sessionEscalateCmd = &cobra.Command{
	Use:   "escalate <session-id>",
	Short: "Escalate a session to a human tutor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/sessions/"+args[0]+"/escalate", map[string]string{})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session %s escalated", args[0])
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sessions/"+args[0])
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sessions")
		if err != nil {
			return err
		}

		var sessions []map[string]any
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		for _, s := range sessions {
			fmt.Printf("%s  %-10s  persona=%s learner=%s\n", s["id"], s["status"], s["persona_id"], s["learner_id"])
		}
		return nil
	},
}

// --- material ---

var materialCmd = &cobra.Command{
	Use:   "material",
	Short: "Manage persona knowledge materials",
}

var materialAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Upload a material to a persona's knowledge base",
	Long: `Upload a material to a persona's knowledge base.

Examples:
  mentora material add --persona p1 --text "Pythagoras: a^2 + b^2 = c^2" --name "geometry notes"
  mentora material add --persona p1 --file ./calculus.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		personaID, _ := cmd.Flags().GetString("persona")
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		name, _ := cmd.Flags().GetString("name")

		if personaID == "" {
			return fmt.Errorf("--persona is required")
		}
		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}

		req := map[string]string{"source_name": name}
		switch {
		case text != "":
			req["kind"] = "text"
			req["content"] = text
			if name == "" {
				req["source_name"] = "cli upload"
			}
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			if strings.EqualFold(filepath.Ext(file), ".pdf") {
				req["kind"] = "pdf"
			} else {
				req["kind"] = "text"
			}
			req["content_b64"] = base64.StdEncoding.EncodeToString(data)
			if name == "" {
				req["source_name"] = filepath.Base(file)
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/personas/"+personaID+"/materials", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued material %s", result["id"])
		return nil
	},
}

var materialListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a persona's materials",
	RunE: func(cmd *cobra.Command, args []string) error {
		personaID, _ := cmd.Flags().GetString("persona")
		if personaID == "" {
			return fmt.Errorf("--persona is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/personas/"+personaID+"/materials")
		if err != nil {
			return err
		}

		var materials []map[string]any
		if err := decodeJSON(resp, &materials); err != nil {
			return err
		}

		for _, m := range materials {
			fmt.Printf("%s  %-10s  %s\n", m["id"], m["status"], m["source_name"])
		}
		return nil
	},
}

// --- link ---

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Manage persona reference links",
}

var linkAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a reference link to a persona",
	RunE: func(cmd *cobra.Command, args []string) error {
		personaID, _ := cmd.Flags().GetString("persona")
		url, _ := cmd.Flags().GetString("url")
		title, _ := cmd.Flags().GetString("title")
		desc, _ := cmd.Flags().GetString("desc")

		if personaID == "" || url == "" {
			return fmt.Errorf("--persona and --url are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/personas/"+personaID+"/links", map[string]string{
			"url":         url,
			"title":       title,
			"description": desc,
		})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added link %s (%v)", result["id"], result["title"])
		return nil
	},
}

var linkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a persona's links",
	RunE: func(cmd *cobra.Command, args []string) error {
		personaID, _ := cmd.Flags().GetString("persona")
		if personaID == "" {
			return fmt.Errorf("--persona is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/personas/"+personaID+"/links")
		if err != nil {
			return err
		}

		var links []map[string]any
		if err := decodeJSON(resp, &links); err != nil {
			return err
		}

		for _, l := range links {
			fmt.Printf("%s  %s  %s\n", l["id"], l["url"], l["title"])
		}
		return nil
	},
}

// --- review ---

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Submit a session review",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		reviewerID, _ := cmd.Flags().GetString("reviewer")
		rating, _ := cmd.Flags().GetInt("rating")
		comment, _ := cmd.Flags().GetString("comment")

		if sessionID == "" || reviewerID == "" {
			return fmt.Errorf("--session and --reviewer are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/reviews", map[string]any{
			"session_id":  sessionID,
			"reviewer_id": reviewerID,
			"rating":      rating,
			"comment":     comment,
		})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Review %s recorded", result["id"])
		return nil
	},
}

// --- resolve ---

var resolveCmd = &cobra.Command{
	Use:   "resolve <query>",
	Short: "Resolve grounding context for a query against a persona",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		personaID, _ := cmd.Flags().GetString("persona")
		if personaID == "" {
			return fmt.Errorf("--persona is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/resolve", map[string]string{
			"persona_id": personaID,
			"query":      strings.Join(args, " "),
		})
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	sessionStartCmd.Flags().String("persona", "", "persona ID")
	sessionStartCmd.Flags().String("learner", "", "learner ID")
	sessionEndCmd.Flags().Bool("cancel", false, "cancel instead of completing (no charge)")
	sessionCmd.AddCommand(sessionStartCmd, sessionSayCmd, sessionEndCmd, sessionEscalateCmd, sessionShowCmd, sessionListCmd)

	materialAddCmd.Flags().String("persona", "", "persona ID")
	materialAddCmd.Flags().String("text", "", "text content to upload")
	materialAddCmd.Flags().String("file", "", "file path to upload (.pdf or text)")
	materialAddCmd.Flags().String("name", "", "source name for the material")
	materialListCmd.Flags().String("persona", "", "persona ID")
	materialCmd.AddCommand(materialAddCmd, materialListCmd)

	linkAddCmd.Flags().String("persona", "", "persona ID")
	linkAddCmd.Flags().String("url", "", "link URL")
	linkAddCmd.Flags().String("title", "", "link title (fetched from the page when omitted)")
	linkAddCmd.Flags().String("desc", "", "link description")
	linkListCmd.Flags().String("persona", "", "persona ID")
	linkCmd.AddCommand(linkAddCmd, linkListCmd)

	reviewCmd.Flags().String("session", "", "session ID")
	reviewCmd.Flags().String("reviewer", "", "reviewer (learner) ID")
	reviewCmd.Flags().Int("rating", 0, "rating from 1 to 5")
	reviewCmd.Flags().String("comment", "", "optional comment")

	resolveCmd.Flags().String("persona", "", "persona ID")
}
