package transform

// columnSpec describes one portal export column: the header the portal
// writes, the destination column it maps to, and how its cells are
// cleaned. Columns marked dropped are consumed from the export but
// never loaded.
type columnSpec struct {
	header   string
	name     string
	date     bool
	id       bool
	required bool
	dropped  bool
}

// ticketColumns is the fixed portal-to-table mapping, in destination
// column order. The portal renames nothing on its side, so the headers
// here follow its export verbatim, accents included.
var ticketColumns = []columnSpec{
	{header: "Sequencia", name: "sequencia", id: true, required: true},
	{header: "Raiz", name: "raiz", id: true, required: true},
	{header: "Empresa Manutenção", name: "empresa_manutencao"},
	{header: "Tipo de Alarme", name: "tipo_de_alarme"},
	{header: "Tipo de Bilhete", name: "tipo_de_bilhete"},
	{header: "Tipo de Falha", name: "tipo_de_falha"},
	{header: "Data Criacao", name: "data_criacao", date: true, required: true},
	{header: "Data Encerramento", name: "data_encerramento", date: true, required: true},
	{header: "Sigla Estado", name: "sigla_estado"},
	{header: "Nome Estado", name: "nome_estado"},
	{header: "Nome Localidade", name: "nome_localidade"},
	{header: "Codigo Gerencia", name: "codigo_gerencia"},
	{header: "Nome Gerencia", name: "nome_gerencia"},
	{header: "Nome Município", name: "nome_municipio"},
	{header: "Nome Area", name: "nome_area"},
	{header: "Grupo Responsavel", name: "grupo_responsavel"},
	{header: "Grupo Criador", name: "grupo_criador"},
	{header: "Tipo Rede", name: "tipo_rede"},
	{header: "Baixado por Grupo", name: "baixado_por_grupo"},
	{header: "Código Baixa", name: "codigo_baixa"},
	{header: "Baixa Grupo", name: "baixa_grupo"},
	{header: "Baixa Componente", name: "baixa_componente"},
	{header: "Baixa Órgão", name: "baixa_orgao"},
	{header: "Baixa Causa", name: "baixa_causa"},
	{header: "Baixa Reparo", name: "baixa_reparo"},
	{header: "Baixa Defeito", name: "baixa_defeito"},
	{header: "Sigla Localidade", name: "sigla_localidade"},
	{header: "Código Area", name: "codigo_area"},
	{header: "Sigla Localidade Dest Optica", name: "sigla_localidade_dest_optica"},
	{header: "Codigo Area Dest Optica", name: "codigo_area_dest_optica"},
	{header: "Endereço", name: "endereco"},
	{header: "Bairro", name: "bairro"},
	{header: "Endereço falha Óptica", name: "endereco_falha_optica"},
	{header: "VTA PK", name: "vta_pk", id: true, dropped: true},
}

// loadedColumns returns the specs that survive into the record set, in
// table order.
func loadedColumns() []columnSpec {
	out := make([]columnSpec, 0, len(ticketColumns))
	for _, c := range ticketColumns {
		if !c.dropped {
			out = append(out, c)
		}
	}
	return out
}
