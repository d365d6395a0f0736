package chat

// View is an immutable, ordered snapshot of the room.
// A new View is built on every store delivery; nobody mutates an existing one.
type View struct {
	messages []ChatMessage
	index    map[string]int
}

func NewView(messages []ChatMessage) View {
	owned := make([]ChatMessage, len(messages))
	copy(owned, messages)
	index := make(map[string]int, len(owned))
	for i, m := range owned {
		index[m.ID] = i
	}
	return View{messages: owned, index: index}
}

// Messages returns a copy of the ordered messages.
func (v View) Messages() []ChatMessage {
	out := make([]ChatMessage, len(v.messages))
	copy(out, v.messages)
	return out
}

func (v View) Len() int {
	return len(v.messages)
}

func (v View) Find(id string) (ChatMessage, bool) {
	i, ok := v.index[id]
	if !ok {
		return ChatMessage{}, false
	}
	return v.messages[i], true
}
