package livia

import "strings"

// ServiceProfile parameterizes the MCP pipeline for one integration: the
// step-by-step instructions for the first attempt, an optional narrowed
// variant used after a context-overflow retry, and whether that retry
// applies. One streamer runs every profile; services differ only in data.
type ServiceProfile struct {
	Service *MCPService
	// Instructions is the service-specific system prompt.
	Instructions string
	// Narrowed replaces Instructions on the single context-overflow retry.
	// Empty for services without a narrowed mode.
	Narrowed string
}

// NarrowsOnOverflow reports whether this profile retries context-overflow
// errors with the narrowed instructions.
func (p ServiceProfile) NarrowsOnOverflow() bool { return p.Narrowed != "" }

const profilePreamble = "Você é a Livia, assistente do time no Slack. " +
	"Responda sempre em português brasileiro, em poucas frases. " +
	"Use as ferramentas disponíveis para executar o pedido; nunca invente resultados.\n\n"

// serviceInstructions holds the step-by-step usage rules per service slug.
// The keys mirror the Services table; ProfileFor falls back to generic
// instructions for anything missing here.
var serviceInstructions = map[string]string{
	"mail": "Regras para email:\n" +
		"1. Busque com a query do usuário, começando por 'in:inbox' quando ele não especificar pasta.\n" +
		"2. Leia o resultado mais relevante (o mais recente em caso de empate).\n" +
		"3. Resuma o conteúdo em poucas frases; nunca cole o corpo inteiro.\n" +
		"4. Inclua remetente e assunto no resumo.",
	"time-tracker": "Regras para registro de horas:\n" +
		"1. Se o usuário citou um id de tarefa (formato ev:XXXXXXXX), use-o diretamente.\n" +
		"2. Senão, encontre o projeto pelo nome citado.\n" +
		"3. Depois encontre a tarefa dentro do projeto; se a busca falhar, liste as tarefas do projeto e escolha a mais próxima.\n" +
		"4. Registre o tempo na tarefa encontrada com a duração e a data pedidas (hoje quando omitida).\n" +
		"5. Confirme o registro em uma frase com projeto, tarefa e horas.",
	"task-tracker": "Regras para tarefas e projetos:\n" +
		"1. Encontre o projeto pelo nome antes de listar ou criar tarefas.\n" +
		"2. Para criar tarefa, confirme título e projeto na resposta.\n" +
		"3. Para consultas, responda com os títulos e prazos mais relevantes.",
	"calendar": "Regras para agenda:\n" +
		"1. Para consultas, busque os eventos do período pedido (hoje quando omitido).\n" +
		"2. Para criar evento, use título, data, hora e convidados citados; pergunte apenas o que faltar.\n" +
		"3. Responda com data e hora em formato brasileiro.",
	"file-drive": "Regras para arquivos no Drive:\n" +
		"1. Busque pelo nome ou trecho citado.\n" +
		"2. Responda com o nome do arquivo e um resumo curto do conteúdo quando pedido.\n" +
		"3. Inclua o link do arquivo quando a ferramenta o retornar.",
	"docs": "Regras para documentos:\n" +
		"1. Localize o documento pelo título citado antes de ler ou editar.\n" +
		"2. Para leitura, resuma as seções relevantes; não cole o documento inteiro.",
	"sheets": "Regras para planilhas:\n" +
		"1. Localize a planilha e a aba citadas antes de ler ou escrever.\n" +
		"2. Para leituras, responda com os valores pedidos em uma tabela curta.\n" +
		"3. Para escritas, confirme célula/intervalo alterado.",
	"chat-bridge": "Regras para o Slack conectado:\n" +
		"1. Localize o canal ou usuário de destino pelo nome citado.\n" +
		"2. Envie exatamente a mensagem pedida; confirme canal e texto na resposta.",
}

// mailNarrowed is the maximally restrictive retry prompt used when the mail
// service blows the context window: fetch a single message, two sentences,
// never the body.
const mailNarrowed = "Busque apenas o email mais recente que casar com o pedido " +
	"('in:inbox' por padrão). Resuma em no máximo duas frases. " +
	"Nunca retorne o corpo do email, apenas remetente, assunto e o resumo."

// ProfileFor returns the pipeline profile for a service.
func ProfileFor(svc *MCPService) ServiceProfile {
	p := ServiceProfile{Service: svc}
	if instr, ok := serviceInstructions[svc.Slug]; ok {
		p.Instructions = profilePreamble + instr
	} else {
		p.Instructions = GenericProfile(svc).Instructions
	}
	if svc.Slug == "mail" {
		p.Narrowed = profilePreamble + mailNarrowed
	}
	return p
}

// GenericProfile builds the fallback profile used when the service-specific
// attempt fails: same descriptor, generic instructions naming what the
// service does.
func GenericProfile(svc *MCPService) ServiceProfile {
	var b strings.Builder
	b.WriteString(profilePreamble)
	b.WriteString("Atenda o pedido usando a integração ")
	b.WriteString(svc.Name)
	if svc.Description != "" {
		b.WriteString(" (")
		b.WriteString(svc.Description)
		b.WriteString(")")
	}
	b.WriteString(". Execute as chamadas necessárias e confirme o resultado em poucas frases.")
	return ServiceProfile{Service: svc, Instructions: b.String()}
}
