package dispatcher

// DefaultSubject is the outreach subject line.
const DefaultSubject = "Öğrenciler için modern KRLE/Din Kültürü öğrenme aracı – Relingo"

// DefaultBody is the outreach message. Templates may use .Name, .Website
// and .Email.
const DefaultBody = `Merhaba,

Ben Norveç'ten Servan Korkmaz, eğitim teknolojileri geliştiren bir veri mühendisiyim.

Dinler, kültürler ve etik değerler üzerine etkileşimli öğrenme sunan "Relingo" adlı yapay zekâ destekli bir uygulama geliştirdim.

Türkiye'deki okullara bu öğrenme yaklaşımını tanıtmak isteriz.

Okulunuzun uygulamanın ilk deneme sürecine katılmasını çok isteriz.

2 hafta ücretsiz deneyip kısa bir geri bildirim verebilirseniz bizim icin cok iyi olur.

İnceleme bağlantısı:

🌐 https://relingo-git-main-colsterrs-projects.vercel.app

Saygılarımla,
Servan Korkmaz`
