package swml

import "fmt"

// Prebuilt documents for the LiveWire call flows. These replace the YAML
// templates of earlier iterations; building them in code keeps variable
// injection type-checked.

const agentPromptText = `You are a friendly support agent for LiveWire.
Greet the caller and ask whether they are an existing member.
If they provide a member ID, verify it with the verify_customer function.
If they would like to become a member, use the create_member function to send them a signup form.
Once you have collected their first name, last name and a short summary of their issue, call send_user_info to transfer them to a human agent.`

// MainDocument is returned to the inbound-call webhook: answer the call
// and hand it to the AI agent with the SWAIG functions wired back to us.
func MainDocument(publicURL string) Document {
	return NewDocument(
		Answer(),
		AI(AIConfig{
			Prompt: Prompt{Text: agentPromptText},
			SWAIG: &SWAIG{
				Defaults: &SWAIGDefaults{WebHookURL: publicURL + "/api/swaig"},
				Functions: []Function{
					{
						Function:    "verify_customer",
						Description: "The function to execute when we need to verify the customer account ID provided.",
						Fillers: map[string][]string{
							"default": {
								"Thank you, let me verify the member id you provided.",
								"Excellent, verifying your member id now, one second please.",
							},
						},
						Argument: &Argument{
							Type: "object",
							Properties: map[string]Property{
								"member_id": {Type: "string", Description: "The member ID to verify"},
							},
							Required: []string{"member_id"},
						},
					},
					{
						Function:    "create_member",
						Description: "The function to execute when the user claims they would like to be a member.",
						Fillers: map[string][]string{
							"default": {
								"Thank you, I will send you a form to fill out to become a member now.",
								"Excellent! I'm glad to hear you are interested, you should see a form on your screen shortly.",
							},
						},
						Argument: &Argument{
							Type: "object",
							Properties: map[string]Property{
								"create_member": {Type: "boolean", Description: "Whether to create a member"},
							},
							Required: []string{"create_member"},
						},
					},
					{
						Function:    "send_user_info",
						Description: "The function to execute when we need to send the user info to the client.",
						Fillers: map[string][]string{
							"default": {
								"Thank you ${args.first_name} ${args.last_name}, I am transferring you to the next available agent.",
							},
						},
						Argument: &Argument{
							Type: "object",
							Properties: map[string]Property{
								"first_name": {Type: "string", Description: "The user's first name"},
								"last_name":  {Type: "string", Description: "The user's last name"},
								"summary":    {Type: "string", Description: "The user's summary"},
							},
							Required: []string{"first_name", "last_name", "summary"},
						},
					},
				},
			},
		}),
	)
}

// TransferDocument rings every address in parallel; first to answer wins.
// An empty address list still renders a valid connect block so the call
// flow sees "no agents available" instead of a malformed document.
func TransferDocument(addresses []string, statusCallbackURL string) Document {
	targets := make([]Target, 0, len(addresses))
	for _, a := range addresses {
		if a == "" {
			continue
		}
		targets = append(targets, Target{To: a})
	}
	return NewDocument(Connect(ConnectConfig{
		Parallel:  targets,
		StatusURL: statusCallbackURL,
	}))
}

// MemberFormDocument tells the browser widget to show the signup form.
func MemberFormDocument() Document {
	return NewDocument(UserEvent(map[string]any{"type": "show_member_form"}))
}

// CustomerVerifiedDocument surfaces the verification outcome to the widget.
func CustomerVerifiedDocument(firstName, lastName string) Document {
	return NewDocument(UserEvent(map[string]any{
		"type":    "customer_verified",
		"message": fmt.Sprintf("Welcome back, %s %s!", firstName, lastName),
	}))
}
