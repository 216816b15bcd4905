package dialog

import "github.com/Spok95/wb-materials-bot/internal/form"

type State string

const (
	StateIdle State = "idle"

	// Заполнение анкеты шаблона, сама анкета лежит в Item.Form
	StateForm State = "form"

	// Поиск заказа
	StateSearchMethod        State = "search_method"         // дата и место или номер чека
	StateSearchDatetime      State = "search_datetime"       // ввод даты и времени заказа
	StateSearchCountry       State = "search_country"        // выбор страны
	StateSearchSenderCity    State = "search_sender_city"    // город отправителя (Россия)
	StateSearchRecipientCity State = "search_recipient_city" // город получателя (Россия)
	StateSearchReceipt       State = "search_receipt"        // ввод номера чека
)

// Ключи payload.
const (
	KeyMaterialID = "material_id"
	KeyTemplateID = "template_id"
	KeyDatetime   = "order_datetime" // местное время, как ввёл пользователь
	KeyCountryID  = "country_id"
	KeySenderCity = "sender_city_id"
)

type Payload map[string]any

type Item struct {
	ChatID  int64
	State   State
	Payload Payload
	Form    *form.State
	FormErr error // анкета сохранена, но не читается
}
