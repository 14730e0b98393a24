package calendar

import "backend/internal/event"

// colorID 事件类型到 Google Calendar 颜色 ID 的映射
func colorID(t event.Type) string {
	switch t {
	case event.TypeEvento:
		return "8" // Graphite
	case event.TypeAcaoPontual:
		return "5" // Banana
	case event.TypeReuniao:
		return "9" // Blueberry
	case event.TypeVisita:
		return "10" // Basil
	case event.TypeFerias:
		return "11" // Tomato
	case event.TypeFolga:
		return "3" // Grape
	case event.TypeLicenca:
		return "4" // Flamingo
	case event.TypeOutros:
		return "8" // Graphite
	default:
		return "8"
	}
}
