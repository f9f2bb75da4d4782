package livia

import "strings"

// MCPService describes one integration behind the MCP gateway. The table is
// static; credentials and the gateway URL come from configuration.
type MCPService struct {
	// Slug keys the service in config and logs.
	Slug string
	// Name is the human-readable display name.
	Name string
	// Label is the server label the gateway routes on.
	Label string
	// Tag is the capability tag surfaced in response headers.
	Tag string
	// Keywords route user text to this service. Lowercase; matched as
	// substrings after normalization.
	Keywords []string
	// Description is included in generic instructions so the model knows
	// what the service can do.
	Description string
}

// Services lists the registered integrations in routing priority order,
// most specific first. Overlapping keywords ("docs" also appears inside
// "google docs") are disambiguated by this order; adding an integration is
// appending a row.
var Services = []MCPService{
	{
		Slug:        "file-drive",
		Name:        "Google Drive",
		Label:       "google_drive",
		Tag:         "McpFileDrive",
		Keywords:    []string{"google drive", "gdrive", "drive", "arquivo"},
		Description: "busca e leitura de arquivos no Google Drive do time",
	},
	{
		Slug:        "mail",
		Name:        "Gmail",
		Label:       "gmail",
		Tag:         "McpMail",
		Keywords:    []string{"gmail", "email", "e-mail"},
		Description: "busca, leitura e resumo de emails",
	},
	{
		Slug:        "task-tracker",
		Name:        "Asana",
		Label:       "asana",
		Tag:         "McpTaskTracker",
		Keywords:    []string{"asana", "task", "tarefa", "project", "projeto"},
		Description: "consulta e atualização de tarefas e projetos",
	},
	{
		Slug:        "calendar",
		Name:        "Google Calendar",
		Label:       "google_calendar",
		Tag:         "McpCalendar",
		Keywords:    []string{"calendar", "calendário", "agenda", "evento", "event", "meeting", "reunião"},
		Description: "consulta e criação de eventos de agenda",
	},
	{
		Slug:        "docs",
		Name:        "Google Docs",
		Label:       "google_docs",
		Tag:         "McpDocs",
		Keywords:    []string{"docs", "document", "documento"},
		Description: "leitura e criação de documentos",
	},
	{
		Slug:        "sheets",
		Name:        "Google Sheets",
		Label:       "google_sheets",
		Tag:         "McpSheets",
		Keywords:    []string{"sheets", "spreadsheet", "planilha"},
		Description: "leitura e edição de planilhas",
	},
	{
		Slug:        "time-tracker",
		Name:        "Everhour",
		Label:       "everhour",
		Tag:         "McpTimeTracker",
		Keywords:    []string{"everhour", "time", "hours", "horas", "track", "ev:"},
		Description: "registro e consulta de horas em projetos e tarefas",
	},
	{
		Slug:        "chat-bridge",
		Name:        "Slack",
		Label:       "slack",
		Tag:         "McpChatBridge",
		Keywords:    []string{"slack"},
		Description: "mensagens e canais em workspaces conectados",
	},
}

// ServiceBySlug returns the registered service with the given slug, or nil.
func ServiceBySlug(slug string) *MCPService {
	for i := range Services {
		if Services[i].Slug == slug {
			return &Services[i]
		}
	}
	return nil
}

// ServiceByLabel returns the registered service with the given gateway
// server label, or nil.
func ServiceByLabel(label string) *MCPService {
	for i := range Services {
		if Services[i].Label == label {
			return &Services[i]
		}
	}
	return nil
}

// RouteService scans the table in priority order and returns the first
// service whose keyword set matches text, or nil when the native agent
// should handle the message.
func RouteService(text string) *MCPService {
	t := normalizeText(text)
	if t == "" {
		return nil
	}
	for i := range Services {
		if Services[i].matches(t) {
			return &Services[i]
		}
	}
	return nil
}

// matches reports whether any keyword occurs in the normalized text.
func (s *MCPService) matches(normalized string) bool {
	for _, k := range s.Keywords {
		if strings.Contains(normalized, k) {
			return true
		}
	}
	return false
}
