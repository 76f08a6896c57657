// Package llm implements the embedding and completion collaborators on top
// of the OpenAI API.
package llm

// Choice is one completion returned by the collaborator. The completion
// stage filters choices by role before turning them into history messages.
type Choice struct {
	Role string
	Text string
}
