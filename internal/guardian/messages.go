package guardian

import (
	"fmt"
	"strings"
)

// Catalog holds the notification texts for one language together with the
// phrases that identify them when they echo back through the log.
//
// Every text a Catalog can produce must contain at least one Echo phrase,
// otherwise the guardian could react to its own notices (the activation
// notice says "type 'exit'", the emergency notice says "type 'cancel'").
type Catalog struct {
	Lang string

	Activation         string
	Warning            string // %d: minutes until shutdown
	ShutdownStart      string
	Delayed            string // %s: new shutdown time, HH:MM
	EmergencyArmed     string
	EmergencyCancelled string
	Success            string // %d: seconds until power-off

	Echo []string
}

var catalogs = map[string]Catalog{
	"en": {
		Lang:               "en",
		Activation:         "Night guardian active. Type 'exit' to end the session.",
		Warning:            "🌙 ATTENTION! Server shuts down in %d minutes. Type 'delay' to extend.",
		ShutdownStart:      "⚠️ Beginning shutdown procedure. Saving world...",
		Delayed:            "✅ Shutdown delayed by 1 hour. New time: %s.",
		EmergencyArmed:     "⚠️ Server shuts down in 30 seconds. Type 'cancel' to abort.",
		EmergencyCancelled: "✅ Emergency shutdown CANCELLED!",
		Success:            "🌌 World saved. Shutdown command sent to the system (%d s)...",
		Echo: []string{
			"night guardian active",
			"attention",
			"beginning shutdown",
			"shutdown delayed",
			"server shuts down in",
			"cancelled",
			"world saved",
		},
	},
	"ru": {
		Lang:               "ru",
		Activation:         "⚔️ Программа запущена. Для завершения сессии введите 'exit'.",
		Warning:            "🌙 ВНИМАНИЕ! Через %d минут сервер будет остановлен. Напишите 'delay' чтобы продлить.",
		ShutdownStart:      "⚠️ Начало процедуры выключения. Сохранение мира...",
		Delayed:            "✅ Выключение отложено на 1 час. Новое время: %s.",
		EmergencyArmed:     "⚠️ Сервер выключится через 30 секунд. Напишите 'cancel' для отмены.",
		EmergencyCancelled: "✅ Экстренное выключение ОТМЕНЕНО!",
		Success:            "🌌 Мир сохранен. Команда выключения отправлена системе (%d сек)...",
		Echo: []string{
			"программа запущена",
			"страж активирован",
			"внимание",
			"начало процедуры",
			"выключение отложено",
			"сервер выключится",
			"отменено",
			"мир сохранен",
		},
	},
}

// CatalogFor returns the catalog for lang ("" means "en").
func CatalogFor(lang string) (Catalog, error) {
	l := strings.ToLower(strings.TrimSpace(lang))
	if l == "" {
		l = "en"
	}
	c, ok := catalogs[l]
	if !ok {
		return Catalog{}, fmt.Errorf("guardian: no message catalog for language %q", lang)
	}
	return c, nil
}

func (c Catalog) warning(minutes int) string { return fmt.Sprintf(c.Warning, minutes) }
func (c Catalog) delayed(hhmm string) string { return fmt.Sprintf(c.Delayed, hhmm) }
func (c Catalog) success(seconds int) string { return fmt.Sprintf(c.Success, seconds) }

// EchoFilter recognizes the guardian's own notices among inbound chat.
func (c Catalog) EchoFilter() EchoFilter { return NewEchoFilter(c.Echo...) }

// EchoFilter is the enumerated anti-echo set: a message containing any of
// its phrases (case-insensitive) is treated as self-authored and dropped
// before authorization and command matching.
type EchoFilter struct {
	phrases []string
}

func NewEchoFilter(phrases ...string) EchoFilter {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return EchoFilter{phrases: out}
}

func (f EchoFilter) IsEcho(message string) bool {
	m := normalizeMessage(message)
	for _, p := range f.phrases {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}

func normalizeMessage(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
