package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"crmbot/internal/domain"
	"crmbot/internal/importer"
	"crmbot/internal/ledger/agenda"
	"crmbot/platform/sanitize"
)

const (
	msgAccessDenied      = "⛔ Доступ запрещён. Передайте администратору ваш ID: <code>%d</code>"
	msgNotManager        = "Вы не зарегистрированы как менеджер."
	msgAdminOnly         = "Команда доступна только администратору."
	msgWhoAmI            = "Ваш Telegram ID: <code>%d</code>"
	msgCancelled         = "Действие отменено."
	msgNoFlow            = "Выберите действие в меню."
	msgUseButtons        = "Воспользуйтесь кнопками ниже."
	msgAskTaxID          = "Введите ИНН компании (10 или 12 цифр):"
	msgBadTaxID          = "❌ ИНН должен содержать 10 или 12 цифр. Попробуйте ещё раз:"
	msgCompanyNotFound   = "Данные о компании не найдены. Продолжаем без них."
	msgEnrichmentPartial = "⚠️ Часть данных о компании недоступна."
	msgConfirmCompany    = "Это нужная компания?"
	msgAskContactName    = "Введите ФИО контактного лица:"
	msgBadContactName    = "❌ Имя должно содержать минимум 2 символа. Попробуйте ещё раз:"
	msgAskPhone          = "Введите телефон контактного лица:"
	msgAskEmail          = "Введите email контактного лица:"
	msgBadEmail          = "❌ Некорректный email. Попробуйте ещё раз или пропустите:"
	msgAskComment        = "Введите комментарий по звонку:"
	msgEmptyComment      = "❌ Комментарий обязателен. Введите текст:"
	msgAskNextDate       = "Введите дату следующего контакта (ДД.ММ.ГГ):"
	msgBadNextDate       = "❌ Неверная дата. Используйте формат ДД.ММ.ГГ, например 05.03.25:"
	msgNoPriorCall       = "Предыдущих звонков по этому ИНН не найдено, будет создана новая запись."
	msgCallSaved         = "✅ Звонок сохранён: <b>%s</b> (ИНН %s)"
	msgLedgerFailed      = "⚠️ Данные сохранены, но запись в вашу таблицу не удалась."
	msgAggregateFailed   = "⚠️ Запись в сводную таблицу не удалась."
	msgNextContact       = "Следующий контакт: %s"
	msgNothingToday      = "На сегодня звонков не запланировано."
	msgAgendaFailed      = "⚠️ Не удалось прочитать таблицу. Попробуйте позже."
	msgYourLedger        = "📊 Ваша таблица: %s"
	msgAskManagerID      = "Введите Telegram ID нового менеджера:"
	msgBadManagerID      = "❌ ID должен быть положительным числом. Попробуйте ещё раз:"
	msgManagerExists     = "Менеджер с ID %d уже зарегистрирован."
	msgAskManagerName    = "Введите ФИО менеджера:"
	msgBadManagerName    = "❌ ФИО должно содержать минимум 2 символа. Попробуйте ещё раз:"
	msgLedgerCreateFail  = "❌ Не удалось создать таблицу. Менеджер не добавлен."
	msgManagerSaveFail   = "❌ Не удалось сохранить менеджера."
	msgManagerAdded      = "✅ Менеджер <b>%s</b> добавлен.\nТаблица: %s"
	msgNoManagers        = "Нет активных менеджеров."
	msgPickManager       = "Выберите менеджера для импорта:"
	msgBadManagerPick    = "Менеджер не найден. Выберите из списка:"
	msgAskImportFile     = "Отправьте CSV файл для менеджера <b>%s</b>."
	msgBadImportFile     = "❌ %s. Отправьте CSV файл:"
	msgImportFailed      = "❌ Не удалось обработать файл: %s"
	msgInternal          = "❌ Внутренняя ошибка. Попробуйте позже."
)

func mainMenu(isManager, isAdmin bool) [][]Button {
	var rows [][]Button
	if isManager {
		rows = append(rows,
			[]Button{button("📞 Новый звонок", ActionNewCall, ""), button("🔁 Повторный звонок", ActionRepeatCall, "")},
			[]Button{button("📅 Звонки на сегодня", ActionToday, ""), button("📊 Моя таблица", ActionLedger, "")},
		)
	}
	if isAdmin {
		rows = append(rows, []Button{button("➕ Добавить менеджера", ActionAddManager, ""), button("📥 Импорт", ActionImport, "")})
	}
	return rows
}

func cancelRow() []Button {
	return []Button{button("✖️ Отмена", ActionCancel, "")}
}

func skipCancelRow() []Button {
	return []Button{button("⏭ Пропустить", ActionSkip, ""), button("✖️ Отмена", ActionCancel, "")}
}

func prompt(text string) Reply {
	return Reply{Text: text, Buttons: [][]Button{cancelRow()}}
}

func skippablePrompt(text string) Reply {
	return Reply{Text: text, Buttons: [][]Button{skipCancelRow()}}
}

func confirmPrompt(text string) Reply {
	return Reply{Text: text, Buttons: [][]Button{
		{button("✅ Да", ActionConfirm, ""), button("↩️ Нет", ActionReject, "")},
		cancelRow(),
	}}
}

// companyCard renders the registry facts shown for confirmation.
func companyCard(taxID string, snap *domain.CompanySnapshot) string {
	var b strings.Builder
	name := domain.UnknownCompany
	if snap != nil && snap.Name != nil {
		name = *snap.Name
	}
	fmt.Fprintf(&b, "🏢 <b>%s</b>\nИНН: %s", sanitize.EscapeHTML(name), taxID)
	if snap == nil {
		return b.String()
	}
	line := func(label string, v *string) {
		if v != nil && *v != "" {
			fmt.Fprintf(&b, "\n%s: %s", label, sanitize.EscapeHTML(*v))
		}
	}
	money := func(label string, v *int64, unit string) {
		if v != nil {
			fmt.Fprintf(&b, "\n%s: %s %s", label, groupThousands(*v), unit)
		}
	}
	line("Регион", snap.Region)
	if snap.ClassificationCode != nil {
		label := ""
		if snap.ClassificationLabel != nil {
			label = " " + *snap.ClassificationLabel
		}
		fmt.Fprintf(&b, "\nОКВЭД: %s", sanitize.EscapeHTML(*snap.ClassificationCode+label))
	}
	money("Выручка", snap.RevenueCurrent, "тыс. ₽")
	money("Выручка (пред. год)", snap.RevenuePrior, "тыс. ₽")
	money("Госконтракты", snap.GovContractsSum, "₽")
	if snap.LitigationOpenCount != nil && *snap.LitigationOpenCount > 0 {
		fmt.Fprintf(&b, "\nАрбитраж: %d дел", *snap.LitigationOpenCount)
		if snap.LitigationOpenSum != nil {
			fmt.Fprintf(&b, " на %s ₽", groupThousands(*snap.LitigationOpenSum))
		}
	}
	if snap.Bankrupt != nil && *snap.Bankrupt {
		b.WriteString("\n⚠️ Банкротство")
	}
	line("Email", snap.Email)
	return b.String()
}

func groupThousands(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ' ')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

func priorCallSummary(rec domain.CallRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏢 <b>%s</b> (ИНН %s)", sanitize.EscapeHTML(rec.CompanyName), rec.TaxID)
	if rec.ContactName != "" {
		fmt.Fprintf(&b, "\nКонтакт: %s", sanitize.EscapeHTML(rec.ContactName))
	}
	if rec.ContactPhone != "" {
		fmt.Fprintf(&b, "\nТелефон: %s", sanitize.EscapeHTML(rec.ContactPhone))
	}
	fmt.Fprintf(&b, "\nПоследний комментарий: %s", sanitize.EscapeHTML(rec.Comment))
	return b.String()
}

func agendaText(entries []agenda.Entry) string {
	if len(entries) == 0 {
		return msgNothingToday
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📅 Звонки на сегодня (%d):", len(entries))
	for i, e := range entries {
		fmt.Fprintf(&b, "\n\n%d. <b>%s</b> (ИНН %s)", i+1, sanitize.EscapeHTML(e.CompanyName), e.TaxID)
		if e.ContactName != "" || e.Phone != "" {
			fmt.Fprintf(&b, "\n%s %s", sanitize.EscapeHTML(e.ContactName), sanitize.EscapeHTML(e.Phone))
		}
		if e.LastComment != "" {
			fmt.Fprintf(&b, "\n💬 %s", sanitize.EscapeHTML(e.LastComment))
		}
	}
	return b.String()
}

const maxReportedErrors = 10

func importReportText(r importer.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📥 Импорт завершён.\nЗагружено: %d\nОшибок: %d", r.Imported, r.Failed)
	for i, e := range r.Errors {
		if i == maxReportedErrors {
			fmt.Fprintf(&b, "\n… и ещё %d", len(r.Errors)-maxReportedErrors)
			break
		}
		fmt.Fprintf(&b, "\nСтрока %d: %s", e.Line, sanitize.EscapeHTML(e.Message))
	}
	fmt.Fprintf(&b, "\nТаблица: %s", r.LedgerURL)
	return b.String()
}
